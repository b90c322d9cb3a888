// Package livebridge keeps the enquiry unseen set current from the upstream
// push stream.
//
// The bridge takes a REST snapshot of the unseen set, opens the event stream
// and applies every pushed "new enquiry" event. When the stream drops it
// reconnects with exponential backoff, sends Last-Event-ID, and takes a fresh
// snapshot once the new stream is open so events missed while disconnected
// are not lost.
package livebridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/edulead/enquirydesk/internal/apiclient"
	"github.com/edulead/enquirydesk/internal/domain"
	"github.com/edulead/enquirydesk/internal/store"
)

var (
	streamEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livebridge_events_total",
		Help: "Pushed events by outcome (applied, duplicate, malformed).",
	}, []string{"result"})
	streamReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livebridge_reconnects_total",
		Help: "Push stream reconnect attempts.",
	})
	streamConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livebridge_connected",
		Help: "1 while the push stream is open.",
	})
)

func init() {
	prometheus.MustRegister(streamEvents, streamReconnects, streamConnected)
}

// Target receives snapshots and pushed notifications.
type Target interface {
	FetchNewCount(ctx context.Context) (store.EnquiryState, error)
	Receive(n domain.UnseenNotification) (duplicate bool)
}

// Options configures a Bridge.
type Options struct {
	// URL is the absolute stream endpoint.
	URL string
	// Event is the event name carrying new enquiries; "newEnquiry" when empty.
	Event string
	// HTTPClient must not carry an overall timeout; the stream is long-lived.
	HTTPClient *http.Client
	// Tokens supplies the bearer credential. Nil connects anonymously.
	Tokens       apiclient.TokenSource
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Logger       zerolog.Logger
}

// Bridge is the push-stream consumer. Run it in its own goroutine.
type Bridge struct {
	opts   Options
	target Target
	log    zerolog.Logger

	lastID string
	hint   time.Duration
}

// New returns a bridge applying events to target.
func New(opts Options, target Target) *Bridge {
	if opts.Event == "" {
		opts.Event = "newEnquiry"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}
	return &Bridge{
		opts:   opts,
		target: target,
		log:    opts.Logger.With().Str("component", "livebridge").Logger(),
	}
}

// payload is the JSON body of a new-enquiry event.
type payload struct {
	ID        string    `json:"id"`
	FName     string    `json:"fName"`
	EnqNo     string    `json:"enqNo"`
	CreatedAt time.Time `json:"createdAt"`
}

// Run consumes the stream until ctx is done. It always returns nil after
// cancellation; connection failures are retried, never returned.
func (b *Bridge) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.opts.ReconnectMin
	bo.MaxInterval = b.opts.ReconnectMax
	bo.Reset()

	b.snapshot(ctx)
	first := true
	for {
		opened, err := b.consume(ctx, !first)
		if ctx.Err() != nil {
			return nil
		}
		first = false
		if opened {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		if b.hint > wait {
			wait = b.hint
		}
		streamReconnects.Inc()
		ev := b.log.Warn().Dur("backoff", wait).Str("last_event_id", b.lastID)
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Msg("push stream closed, reconnecting")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (b *Bridge) snapshot(ctx context.Context) {
	if _, err := b.target.FetchNewCount(ctx); err != nil {
		b.log.Warn().Err(err).Msg("new-count snapshot failed")
	}
}

// consume opens one stream and reads it to the end. opened reports whether
// the server accepted the connection. resync takes a snapshot once open.
func (b *Bridge) consume(ctx context.Context, resync bool) (opened bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.opts.URL, nil)
	if err != nil {
		return false, fmt.Errorf("livebridge: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if b.lastID != "" {
		req.Header.Set("Last-Event-ID", b.lastID)
	}
	if b.opts.Tokens != nil {
		if tok, terr := b.opts.Tokens.Token(ctx); terr == nil && tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		} else if terr != nil {
			b.log.Debug().Err(terr).Msg("connecting to push stream without credential")
		}
	}

	resp, err := b.opts.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return false, fmt.Errorf("livebridge: stream status %d", resp.StatusCode)
	}

	streamConnected.Set(1)
	defer streamConnected.Set(0)
	b.log.Info().Str("url", b.opts.URL).Bool("resync", resync).Msg("push stream open")
	if resync {
		b.snapshot(ctx)
	}

	err = b.read(resp.Body)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return true, err
}

// maxLine bounds one stream line. Longer lines are skipped and spoil the
// event they belong to.
const maxLine = 1 << 20

// read parses the event stream until EOF or error.
func (b *Bridge) read(r io.Reader) error {
	br := bufio.NewReaderSize(r, 64<<10)

	var (
		event   string
		id      string
		hasID   bool
		data    []string
		spoiled bool
	)
	for {
		line, long, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if long {
			spoiled = true
			continue
		}
		if line == "" {
			if hasID {
				b.lastID = id
			}
			switch {
			case spoiled:
				streamEvents.WithLabelValues("malformed").Inc()
				b.log.Warn().Str("event_id", id).Int("max_line", maxLine).Msg("dropping oversized push event")
			case len(data) > 0:
				b.dispatch(event, id, strings.Join(data, "\n"))
			}
			event, id, hasID, data, spoiled = "", "", false, nil, false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		case "id":
			if !strings.ContainsRune(value, 0) {
				id, hasID = value, true
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				b.hint = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

// readLine returns the next line without its terminator. A line over maxLine
// is consumed whole and reported as long instead.
func readLine(br *bufio.Reader) (line string, long bool, err error) {
	var buf []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if !long {
			if len(buf)+len(chunk) > maxLine+2 {
				long, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		if long {
			return "", true, nil
		}
		return strings.TrimRight(string(buf), "\r\n"), false, nil
	}
}

func (b *Bridge) dispatch(event, id, data string) {
	if event == "" {
		event = "message"
	}
	if event != b.opts.Event {
		return
	}
	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil || p.ID == "" {
		streamEvents.WithLabelValues("malformed").Inc()
		if err == nil {
			err = errors.New("missing id")
		}
		b.log.Warn().Err(err).Str("event_id", id).Msg("dropping malformed push event")
		return
	}
	n := domain.UnseenNotification{ID: p.ID, FName: p.FName, EnqNo: p.EnqNo, CreatedAt: p.CreatedAt}
	if b.target.Receive(n) {
		streamEvents.WithLabelValues("duplicate").Inc()
		b.log.Warn().Str("enquiry_id", p.ID).Msg("pushed enquiry already unseen")
		return
	}
	streamEvents.WithLabelValues("applied").Inc()
}

package services

import (
	"github.com/edulead/enquirydesk/internal/domain"
	"github.com/edulead/enquirydesk/internal/realtime"
	"github.com/edulead/enquirydesk/internal/store"
)

// The dashboard's upstream collections.
var (
	Users = Resource{
		Name:  "users",
		Label: "user",
		Rules: Rules{Required: []string{"name", "email"}, Email: []string{"email"}},
	}
	Enquiries = Resource{
		Name:            "enquiries",
		Label:           "enquiry",
		AnonymousCreate: true,
		Rules:           Rules{Required: []string{"fName", "email", "phone"}, Email: []string{"email"}},
	}
	FollowUps = Resource{
		Name:  "followups",
		Label: "follow-up",
		Rules: Rules{Required: []string{"enquiryId", "note"}},
	}
	Contacts = Resource{
		Name:            "contacts",
		Label:           "contact",
		AnonymousCreate: true,
		Rules:           Rules{Required: []string{"name", "email", "message"}, Email: []string{"email"}},
	}
	Services = Resource{
		Name:  "services",
		Label: "service",
		Rules: Rules{Required: []string{"title"}, RequiredFile: "image"},
	}
)

// Stores holds one store per dashboard domain.
type Stores struct {
	Users     *store.Store[store.State[domain.User]]
	Enquiries *store.Store[store.EnquiryState]
	FollowUps *store.Store[store.State[domain.FollowUp]]
	Contacts  *store.Store[store.State[domain.Contact]]
	Services  *store.Store[store.State[domain.Service]]
}

// NewStores returns empty stores named after their resources.
func NewStores() Stores {
	return Stores{
		Users:     store.New(Users.Name, store.NewState[domain.User]()),
		Enquiries: store.New(Enquiries.Name, store.NewEnquiryState()),
		FollowUps: store.New(FollowUps.Name, store.NewState[domain.FollowUp]()),
		Contacts:  store.New(Contacts.Name, store.NewState[domain.Contact]()),
		Services:  store.New(Services.Name, store.NewState[domain.Service]()),
	}
}

// Watch publishes every store's changes on hub. The returned func stops all
// watchers.
func (s Stores) Watch(hub *realtime.Hub) (stop func()) {
	stops := []func(){
		realtime.Watch(hub, s.Users),
		realtime.Watch(hub, s.Enquiries),
		realtime.Watch(hub, s.FollowUps),
		realtime.Watch(hub, s.Contacts),
		realtime.Watch(hub, s.Services),
	}
	return func() {
		for _, f := range stops {
			f()
		}
	}
}

// Snapshot returns the current state of every store, in resource order.
func (s Stores) Snapshot() []realtime.StateEvent {
	return []realtime.StateEvent{
		realtime.Snapshot(s.Users),
		realtime.Snapshot(s.Enquiries),
		realtime.Snapshot(s.FollowUps),
		realtime.Snapshot(s.Contacts),
		realtime.Snapshot(s.Services),
	}
}

// Coordinators holds the coordinator of every resource.
type Coordinators struct {
	Users     *Coordinator[domain.User]
	Enquiries *EnquiryCoordinator
	FollowUps *Coordinator[domain.FollowUp]
	Contacts  *Coordinator[domain.Contact]
	Services  *Coordinator[domain.Service]
}

// NewCoordinators wires a coordinator to each store.
func NewCoordinators(api Upstream, st Stores, opts Options) Coordinators {
	return Coordinators{
		Users:     NewCoordinator[domain.User](Users, api, st.Users, opts),
		Enquiries: NewEnquiryCoordinator(api, st.Enquiries, opts),
		FollowUps: NewCoordinator[domain.FollowUp](FollowUps, api, st.FollowUps, opts),
		Contacts:  NewCoordinator[domain.Contact](Contacts, api, st.Contacts, opts),
		Services:  NewCoordinator[domain.Service](Services, api, st.Services, opts),
	}
}

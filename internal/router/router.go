package router

import (
	"net/http"

	"github.com/famquest/backend/internal/auth"
	"github.com/famquest/backend/internal/children"
	"github.com/famquest/backend/internal/dashboard"
	"github.com/famquest/backend/internal/ledger"
	"github.com/famquest/backend/internal/middleware"
	"github.com/famquest/backend/internal/missions"
	"github.com/famquest/backend/internal/pin"
	"github.com/famquest/backend/internal/punishments"
	"github.com/famquest/backend/internal/rewards"
	"github.com/famquest/backend/internal/session"
)

// Handlers bundles every feature handler the API serves.
type Handlers struct {
	Auth        *auth.Handler
	Pin         *pin.Handler
	Session     *session.Handler
	Children    *children.Handler
	Ledger      *ledger.Handler
	Missions    *missions.Handler
	Rewards     *rewards.Handler
	Punishments *punishments.Handler
	Dashboard   *dashboard.Handler
}

// New returns an http.Handler serving the API under /api/v1. Everything
// except register and login requires a parent JWT; routes with a
// {childID} segment additionally verify the child belongs to that
// parent.
func New(h Handlers, tokens middleware.TokenValidator, kids middleware.ChildLookup) http.Handler {
	mux := http.NewServeMux()
	const base = "/api/v1"

	parentAuth := middleware.ParentAuth(tokens)
	childScope := middleware.ChildScope(kids)

	authed := func(fn http.HandlerFunc) http.Handler {
		return parentAuth(fn)
	}
	childScoped := func(fn http.HandlerFunc) http.Handler {
		return parentAuth(childScope(fn))
	}

	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)

	mux.Handle("POST "+base+"/pin/setup", authed(h.Pin.Setup))
	mux.Handle("POST "+base+"/pin/change", authed(h.Pin.Change))
	mux.Handle("POST "+base+"/pin/verify", authed(h.Pin.Verify))

	mux.Handle("GET "+base+"/session", authed(h.Session.Status))
	mux.Handle("DELETE "+base+"/session", authed(h.Session.End))
	mux.Handle("POST "+base+"/session/background", authed(h.Session.Background))

	mux.Handle("POST "+base+"/children", authed(h.Children.Create))
	mux.Handle("GET "+base+"/children", authed(h.Children.List))
	mux.Handle("GET "+base+"/children/{childID}", childScoped(h.Children.Get))
	mux.Handle("DELETE "+base+"/children/{childID}", authed(h.Children.Delete))

	mux.Handle("GET "+base+"/children/{childID}/balance", childScoped(h.Ledger.Balance))
	mux.Handle("GET "+base+"/children/{childID}/transactions", childScoped(h.Ledger.History))
	mux.Handle("POST "+base+"/children/{childID}/adjustments", childScoped(h.Ledger.Adjust))

	mux.Handle("POST "+base+"/missions", authed(h.Missions.Create))
	mux.Handle("GET "+base+"/missions", authed(h.Missions.List))
	mux.Handle("PUT "+base+"/missions/{missionID}", authed(h.Missions.Update))
	mux.Handle("DELETE "+base+"/missions/{missionID}", authed(h.Missions.Deactivate))
	mux.Handle("GET "+base+"/children/{childID}/missions", childScoped(h.Missions.ListForChild))
	mux.Handle("GET "+base+"/children/{childID}/instances", childScoped(h.Missions.ListInstances))
	mux.Handle("GET "+base+"/children/{childID}/missions/{missionID}/instance", childScoped(h.Missions.CurrentInstance))
	mux.Handle("POST "+base+"/children/{childID}/instances/{instanceID}/submit", childScoped(h.Missions.Submit))
	mux.Handle("POST "+base+"/instances/{instanceID}/validate", authed(h.Missions.Validate))
	mux.Handle("POST "+base+"/instances/{instanceID}/reject", authed(h.Missions.Reject))

	mux.Handle("POST "+base+"/rewards", authed(h.Rewards.CreateItem))
	mux.Handle("GET "+base+"/rewards", authed(h.Rewards.ListItems))
	mux.Handle("PUT "+base+"/rewards/{itemID}", authed(h.Rewards.UpdateItem))
	mux.Handle("DELETE "+base+"/rewards/{itemID}", authed(h.Rewards.DeactivateItem))
	mux.Handle("POST "+base+"/children/{childID}/claims", childScoped(h.Rewards.Claim))
	mux.Handle("GET "+base+"/children/{childID}/claims", childScoped(h.Rewards.ListClaims))
	mux.Handle("GET "+base+"/claims/pending", authed(h.Rewards.ListPending))
	mux.Handle("POST "+base+"/claims/{claimID}/approve", authed(h.Rewards.Approve))
	mux.Handle("POST "+base+"/claims/{claimID}/reject", authed(h.Rewards.Reject))
	mux.Handle("POST "+base+"/claims/batch-approve", authed(h.Rewards.BatchApprove))

	mux.Handle("POST "+base+"/punishments", authed(h.Punishments.CreateDefinition))
	mux.Handle("GET "+base+"/punishments", authed(h.Punishments.ListDefinitions))
	mux.Handle("POST "+base+"/children/{childID}/punishments", childScoped(h.Punishments.Apply))
	mux.Handle("GET "+base+"/children/{childID}/restrictions", childScoped(h.Punishments.ActiveRestrictions))
	mux.Handle("POST "+base+"/punishment-applications/{applicationID}/lift", authed(h.Punishments.Lift))

	mux.Handle("GET "+base+"/dashboard", authed(h.Dashboard.Overview))

	return mux
}

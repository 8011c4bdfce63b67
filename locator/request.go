package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/domlocator/dom"
	"github.com/hazyhaar/domlocator/horosafe"
	"github.com/hazyhaar/domlocator/kit"
	"github.com/hazyhaar/domlocator/mutation"
)

// errBadRequest marks malformed tool or API arguments.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// SnapshotArgs select the snapshot a request runs against: inline markup
// when HTML is set, the resolver's provider otherwise. Inline markup gets
// a page id derived from its content unless PageID is given. Without a
// Version, content-derived pages get version 1 and caller-named pages the
// next version the resolver has not seen for them. Callers passing an
// explicit Version for changing markup must increase it.
type SnapshotArgs struct {
	HTML    string `json:"html,omitempty"`
	PageID  string `json:"page_id,omitempty"`
	Version uint64 `json:"version,omitempty"`
}

func (r *Resolver) snapshotFor(ctx context.Context, a SnapshotArgs) (*dom.Snapshot, error) {
	if a.HTML == "" {
		if r.provider == nil {
			return nil, badRequest("html is required when no snapshot provider is configured")
		}
		return r.current(ctx)
	}
	if int64(len(a.HTML)) > horosafe.MaxRequestBody {
		return nil, fmt.Errorf("locator: html: %w", horosafe.ErrTooLarge)
	}
	page, version := a.PageID, a.Version
	if page == "" {
		page = "html-" + mutation.HashHTML([]byte(a.HTML))[:16]
	} else if err := horosafe.ValidateIdentifier(page); err != nil {
		return nil, badRequest("page_id: %v", err)
	}
	if version == 0 {
		if a.PageID == "" {
			version = 1
		} else {
			// Markup under a caller-chosen page id may differ from the last
			// request's; a fresh version keeps the cache from answering for it.
			version = r.tracker.NextVersion(page)
		}
	}
	snap, err := dom.ParseString(a.HTML, page, version)
	if err != nil {
		return nil, badRequest("html: %v", err)
	}
	return snap, nil
}

type resolveRequest struct {
	SnapshotArgs
	Locator *Locator `json:"locator,omitempty"`
	Name    string   `json:"name,omitempty"`
}

// ResolveResponse is returned by the resolve tool and endpoint.
type ResolveResponse struct {
	Handle  *Handle       `json:"handle"`
	Outcome Outcome       `json:"outcome"`
	Element CandidateView `json:"element"`
}

type dereferenceRequest struct {
	SnapshotArgs
	Handle *Handle `json:"handle"`
}

// DereferenceResponse is returned by the dereference tool and endpoint.
type DereferenceResponse struct {
	Handle     *Handle       `json:"handle"`
	Reresolved bool          `json:"reresolved"`
	Element    CandidateView `json:"element"`
}

type describeRequest struct {
	Locator *Locator `json:"locator"`
}

// DescribeResponse is returned by the describe tool and endpoint.
type DescribeResponse struct {
	Description string `json:"description"`
	Hash        string `json:"hash"`
}

type candidatesRequest struct {
	SnapshotArgs
	Locator *Locator `json:"locator"`
	Limit   int      `json:"limit,omitempty"`
}

type saveRequest = NamedLocator

type listRequest struct {
	PageID string `json:"page_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type nameRequest struct {
	Name  string `json:"name"`
	Limit int    `json:"limit,omitempty"`
}

type statsRequest struct{}

// operations are the resolver's transport-neutral endpoints, shared by the
// MCP tools and the HTTP API.
type operations struct {
	resolve, dereference, describe, candidates kit.Endpoint
	save, list, get, remove, history, stats    kit.Endpoint
}

func (r *Resolver) buildOperations() *operations {
	wrap := func(op string, ep kit.Endpoint) kit.Endpoint {
		return kit.Logging(r.logger, op)(ep)
	}
	return &operations{
		resolve:     wrap("resolve", r.resolveEndpoint),
		dereference: wrap("dereference", r.dereferenceEndpoint),
		describe:    wrap("describe", r.describeEndpoint),
		candidates:  wrap("candidates", r.candidatesEndpoint),
		save:        wrap("save", r.saveEndpoint),
		list:        wrap("list", r.listEndpoint),
		get:         wrap("get", r.getEndpoint),
		remove:      wrap("delete", r.deleteEndpoint),
		history:     wrap("history", r.historyEndpoint),
		stats:       wrap("stats", r.statsEndpoint),
	}
}

func (r *Resolver) resolveEndpoint(ctx context.Context, req any) (any, error) {
	rr := req.(*resolveRequest)
	if (rr.Locator == nil) == (rr.Name == "") {
		return nil, badRequest("exactly one of locator and name is required")
	}
	snap, err := r.snapshotFor(ctx, rr.SnapshotArgs)
	if err != nil {
		return nil, err
	}

	var h *Handle
	if rr.Name != "" {
		h, err = r.ResolveNamed(ctx, rr.Name, snap)
	} else {
		h, err = r.Resolve(ctx, *rr.Locator, snap)
	}
	if err != nil {
		return nil, err
	}
	outcome := Unique
	if h.LowConfidence {
		outcome = LowConfidenceUnique
	}
	return &ResolveResponse{Handle: h, Outcome: outcome, Element: view(snap, h.NodeID, h.Confidence)}, nil
}

func (r *Resolver) dereferenceEndpoint(ctx context.Context, req any) (any, error) {
	rr := req.(*dereferenceRequest)
	if rr.Handle == nil {
		return nil, badRequest("handle is required")
	}
	if err := rr.Handle.Locator.Validate(); err != nil {
		return nil, err
	}
	snap, err := r.snapshotFor(ctx, rr.SnapshotArgs)
	if err != nil {
		return nil, err
	}
	n, h, err := r.Dereference(ctx, rr.Handle, snap)
	if err != nil {
		return nil, err
	}
	return &DereferenceResponse{
		Handle:     h,
		Reresolved: h.ID != rr.Handle.ID,
		Element:    view(snap, n.ID, h.Confidence),
	}, nil
}

func (r *Resolver) describeEndpoint(_ context.Context, req any) (any, error) {
	rr := req.(*describeRequest)
	if rr.Locator == nil {
		return nil, badRequest("locator is required")
	}
	if err := rr.Locator.Validate(); err != nil {
		return nil, err
	}
	return &DescribeResponse{Description: r.Describe(*rr.Locator), Hash: rr.Locator.Hash()}, nil
}

func (r *Resolver) candidatesEndpoint(ctx context.Context, req any) (any, error) {
	rr := req.(*candidatesRequest)
	if rr.Locator == nil {
		return nil, badRequest("locator is required")
	}
	snap, err := r.snapshotFor(ctx, rr.SnapshotArgs)
	if err != nil {
		return nil, err
	}
	return r.Candidates(ctx, *rr.Locator, snap, rr.Limit)
}

func (r *Resolver) saveEndpoint(ctx context.Context, req any) (any, error) {
	return r.SaveLocator(ctx, *req.(*saveRequest))
}

func (r *Resolver) listEndpoint(ctx context.Context, req any) (any, error) {
	rr := req.(*listRequest)
	list, err := r.ListLocators(ctx, rr.PageID, rr.Limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*SavedLocator{}
	}
	return list, nil
}

func (r *Resolver) getEndpoint(ctx context.Context, req any) (any, error) {
	_, saved, err := r.LoadLocator(ctx, req.(*nameRequest).Name)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *Resolver) deleteEndpoint(ctx context.Context, req any) (any, error) {
	name := req.(*nameRequest).Name
	if err := r.DeleteLocator(ctx, name); err != nil {
		return nil, err
	}
	return map[string]string{"status": "deleted", "name": name}, nil
}

func (r *Resolver) historyEndpoint(ctx context.Context, req any) (any, error) {
	rr := req.(*nameRequest)
	if rr.Limit <= 0 {
		rr.Limit = 20
	}
	hist, err := r.History(ctx, rr.Name, rr.Limit)
	if err != nil {
		return nil, err
	}
	if hist == nil {
		hist = []*Resolution{}
	}
	return hist, nil
}

func (r *Resolver) statsEndpoint(ctx context.Context, _ any) (any, error) {
	return r.Summary(ctx)
}

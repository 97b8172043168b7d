/* Copyright 2025, Pulumi Corporation.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package proxmox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
	"pkt.systems/pslog"
)

// store is shared by every Resource derived from one API.
type store struct {
	session    Session
	serializer Serializer
	backend    BackendKind
	logger     pslog.Base
	observer   RequestObserver
}

// Option configures the resources created by NewResource and NewAPI.
type Option func(*store)

// WithLogger sets the logger used for request tracing. A logger stored in the
// call's context is used when none is configured.
func WithLogger(logger pslog.Base) Option {
	return func(s *store) {
		s.logger = logger
	}
}

// WithObserver registers an observer notified after every call.
func WithObserver(observer RequestObserver) Option {
	return func(s *store) {
		s.observer = observer
	}
}

func withBackendKind(kind BackendKind) Option {
	return func(s *store) {
		s.backend = kind
	}
}

func (s *store) loggerFor(ctx context.Context) pslog.Base {
	if s.logger != nil {
		return s.logger
	}
	if logger := pslog.LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return pslog.NoopLogger()
}

// Resource is an address in the API tree. Every extension returns a new
// Resource; a Resource never performs I/O until a verb is called on it.
//
// Resources derived from one API share its Session. They are not safe for
// concurrent use when the session renews credentials.
type Resource struct {
	baseURL string
	path    string
	store   *store
	err     error
}

// NewResource returns the root resource of baseURL served by session.
func NewResource(baseURL string, session Session, serializer Serializer, opts ...Option) *Resource {
	s := &store{session: session, serializer: serializer}
	for _, opt := range opts {
		opt(s)
	}
	return &Resource{baseURL: baseURL, path: "/", store: s}
}

// URL is the full address of the resource.
func (r *Resource) URL() string {
	return r.baseURL + r.path
}

// Path is the address of the resource relative to the backend's base URL.
func (r *Resource) Path() string {
	return r.path
}

// Err returns the error recorded while building the resource, if any.
func (r *Resource) Err() error {
	return r.err
}

func (r *Resource) String() string {
	return fmt.Sprintf("ProxmoxResource (%s)", r.URL())
}

func (r *Resource) extend(segments ...string) *Resource {
	if r.err != nil || len(segments) == 0 {
		return r
	}
	return &Resource{
		baseURL: r.baseURL,
		path:    joinPath(r.path, segments...),
		store:   r.store,
	}
}

// Resource returns the child resource called name. Names starting with an
// underscore are reserved and record an AttributeError instead.
func (r *Resource) Resource(name string) *Resource {
	if strings.HasPrefix(name, "_") {
		return &Resource{baseURL: r.baseURL, path: r.path, store: r.store, err: &AttributeError{Name: name}}
	}
	return r.extend(name)
}

// Call extends the path by ids. A single string is split on "/", a slice adds
// one segment per element, nil and "" leave the path unchanged and any other
// value becomes one segment. With several ids each one is a segment.
func (r *Resource) Call(ids ...any) *Resource {
	switch len(ids) {
	case 0:
		return r
	case 1:
		return r.extend(segments(ids[0])...)
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprint(id))
	}
	return r.extend(parts...)
}

// Nodes addresses /nodes or, given a node name, /nodes/<node>.
func (r *Resource) Nodes(node ...any) *Resource {
	return r.Resource("nodes").Call(node...)
}

// Cluster addresses /cluster.
func (r *Resource) Cluster() *Resource {
	return r.Resource("cluster")
}

// Storage addresses /storage or /storage/<name>.
func (r *Resource) Storage(name ...any) *Resource {
	return r.Resource("storage").Call(name...)
}

// Access addresses /access.
func (r *Resource) Access() *Resource {
	return r.Resource("access")
}

// Pools addresses /pools or /pools/<name>.
func (r *Resource) Pools(name ...any) *Resource {
	return r.Resource("pools").Call(name...)
}

// Get reads the resource, extended by args, with the given query parameters.
func (r *Resource) Get(ctx context.Context, params Params, args ...any) (any, error) {
	return r.Call(args...).request(ctx, http.MethodGet, nil, params)
}

// Post sends data to the resource, extended by args.
func (r *Resource) Post(ctx context.Context, data Params, args ...any) (any, error) {
	return r.Call(args...).request(ctx, http.MethodPost, data, nil)
}

// Put sends data to the resource, extended by args.
func (r *Resource) Put(ctx context.Context, data Params, args ...any) (any, error) {
	return r.Call(args...).request(ctx, http.MethodPut, data, nil)
}

// Delete removes the resource, extended by args.
func (r *Resource) Delete(ctx context.Context, params Params, args ...any) (any, error) {
	return r.Call(args...).request(ctx, http.MethodDelete, nil, params)
}

// Create is an alias for Post.
func (r *Resource) Create(ctx context.Context, data Params, args ...any) (any, error) {
	return r.Post(ctx, data, args...)
}

// Set is an alias for Put.
func (r *Resource) Set(ctx context.Context, data Params, args ...any) (any, error) {
	return r.Put(ctx, data, args...)
}

func (r *Resource) request(ctx context.Context, method string, data, params Params) (any, error) {
	if r.err != nil {
		return nil, r.err
	}
	data = compact(data)
	params = compact(params)

	url := r.URL()
	logger := r.store.loggerFor(ctx)
	cid := xid.New().String()
	if len(data) > 0 {
		logger.Info("proxmox.request", "cid", cid, "method", method, "url", url, "fields", fieldNames(data))
	} else {
		logger.Info("proxmox.request", "cid", cid, "method", method, "url", url)
	}

	start := time.Now()
	resp, err := r.store.session.Request(ctx, method, url, data, params)
	if err != nil {
		r.observe(method, 0, time.Since(start))
		logger.Error("proxmox.request.failed", "cid", cid, "method", method, "url", url, "error", err)
		return nil, fmt.Errorf("failed to %s %s: %w", method, url, err)
	}
	r.observe(method, resp.StatusCode, time.Since(start))
	logger.Debug("proxmox.response", "cid", cid, "status", resp.StatusCode, "output", resp.Text())

	switch {
	case resp.StatusCode >= 400:
		return nil, r.resourceError(resp)
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return r.store.serializer.Loads(resp), nil
	default:
		return nil, nil
	}
}

func (r *Resource) resourceError(resp *Response) error {
	if resp.Reason != "" {
		return &ResourceError{
			StatusCode:    resp.StatusCode,
			StatusMessage: StatusText(resp.StatusCode),
			Content:       resp.Reason,
			Errors:        r.store.serializer.LoadsErrors(resp),
		}
	}
	return &ResourceError{
		StatusCode:    resp.StatusCode,
		StatusMessage: StatusText(resp.StatusCode),
		Content:       resp.Text(),
	}
}

func (r *Resource) observe(method string, status int, elapsed time.Duration) {
	if r.store.observer != nil {
		r.store.observer.ObserveRequest(r.store.backend, method, status, elapsed)
	}
}

// Unmarshal converts a decoded payload into out, which must be a pointer.
func Unmarshal(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

func segments(id any) []string {
	switch v := id.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return strings.Split(v, "/")
	case []string:
		return append([]string(nil), v...)
	case []int:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.Itoa(n)
		}
		return parts
	case []any:
		parts := make([]string, len(v))
		for i, elem := range v {
			parts[i] = fmt.Sprint(elem)
		}
		return parts
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return []string{fmt.Sprint(v)}
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = fmt.Sprint(rv.Index(i).Interface())
		}
		return parts
	}
}

// joinPath appends segments with POSIX path join semantics: a segment
// starting with "/" replaces the path, an empty segment leaves a trailing "/".
func joinPath(base string, segments ...string) string {
	p := base
	if p == "" {
		p = "/"
	}
	for _, segment := range segments {
		switch {
		case strings.HasPrefix(segment, "/"):
			p = segment
		case strings.HasSuffix(p, "/"):
			p += segment
		default:
			p += "/" + segment
		}
	}
	return p
}

// compact drops nil values and dereferences pointers so transports never see
// an explicit null.
func compact(in Params) Params {
	if len(in) == 0 {
		return nil
	}
	out := make(Params, len(in))
	for key, value := range in {
		if value = deref(value); value != nil {
			out[key] = value
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func deref(value any) any {
	if value == nil {
		return nil
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		if _, isReader := rv.Interface().(interface{ Read([]byte) (int, error) }); isReader {
			return rv.Interface()
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	}
	return rv.Interface()
}

func fieldNames(data Params) []string {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

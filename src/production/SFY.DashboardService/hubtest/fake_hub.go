// Package hubtest provides an in-memory hub for exercising discovery runs.
package hubtest

import (
	"context"
	"fmt"
	"sync"

	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/client"
	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
)

// FakeHub serves a fixed fleet and records every call in order
type FakeHub struct {
	mu sync.Mutex

	Devices     []string
	Details     map[string]sfymodels.DeviceDetail
	Files       map[string]string // key: dev + "/" + name
	ListErr     error
	DetailErrs  map[string]error
	ContentErrs map[string]error

	// Block, when set, is called before a detail fetch of the given device
	// returns; tests use it to hold a run in flight.
	Block func(ctx context.Context, dev string) error

	calls       []string
	inFlight    int
	maxInFlight int
}

// New returns an empty fake hub
func New() *FakeHub {
	return &FakeHub{
		Details:     make(map[string]sfymodels.DeviceDetail),
		Files:       make(map[string]string),
		DetailErrs:  make(map[string]error),
		ContentErrs: make(map[string]error),
	}
}

// AddDevice registers a device with its file listing
func (h *FakeHub) AddDevice(dev string, files ...string) *FakeHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Devices = append(h.Devices, dev)
	h.Details[dev] = sfymodels.DeviceDetail{Dev: dev, Files: files}
	return h
}

// AddAxl stores an axl package for dev with the given receive time in unix seconds
func (h *FakeHub) AddAxl(dev, name string, received float64) *FakeHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Files[dev+"/"+name] = fmt.Sprintf(`{"device":%q,"file":"axl.qo","received":%f,"body":{"lat":60.0,"lon":5.0}}`, dev, received)
	return h
}

func (h *FakeHub) enter(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
	h.inFlight++
	if h.inFlight > h.maxInFlight {
		h.maxInFlight = h.inFlight
	}
}

func (h *FakeHub) leave() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inFlight--
}

// ListDevices implements pipeline.DirectoryService
func (h *FakeHub) ListDevices(_ context.Context) ([]string, error) {
	h.enter("list")
	defer h.leave()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ListErr != nil {
		return nil, h.ListErr
	}
	return append([]string(nil), h.Devices...), nil
}

// GetDeviceDetail implements pipeline.DetailService
func (h *FakeHub) GetDeviceDetail(ctx context.Context, dev string) (sfymodels.DeviceDetail, error) {
	h.enter("detail:" + dev)
	defer h.leave()

	if h.Block != nil {
		if err := h.Block(ctx, dev); err != nil {
			return sfymodels.DeviceDetail{}, err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.DetailErrs[dev]; err != nil {
		return sfymodels.DeviceDetail{}, err
	}
	detail, ok := h.Details[dev]
	if !ok {
		return sfymodels.DeviceDetail{}, client.ErrNotFound
	}
	detail.Files = append([]string(nil), detail.Files...)
	return detail, nil
}

// GetFileContent implements pipeline.FileService
func (h *FakeHub) GetFileContent(_ context.Context, dev, name string) ([]byte, error) {
	h.enter("content:" + dev + "/" + name)
	defer h.leave()

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ContentErrs[dev]; err != nil {
		return nil, err
	}
	content, ok := h.Files[dev+"/"+name]
	if !ok {
		return nil, client.ErrNotFound
	}
	return []byte(content), nil
}

// Calls returns the recorded calls in order
func (h *FakeHub) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// MaxInFlight returns the highest number of concurrently outstanding calls seen
func (h *FakeHub) MaxInFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxInFlight
}

// Reset clears the call log
func (h *FakeHub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
	h.maxInFlight = 0
}

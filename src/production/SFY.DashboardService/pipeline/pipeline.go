package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logger "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Logger"
	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
)

// ErrDirectoryFailed aborts a whole run: without the device list nothing can be emitted.
var ErrDirectoryFailed = errors.New("device directory unavailable")

// DirectoryService lists the devices known to the hub
type DirectoryService interface {
	ListDevices(ctx context.Context) ([]string, error)
}

// DetailService returns the file listing of one device
type DetailService interface {
	GetDeviceDetail(ctx context.Context, dev string) (sfymodels.DeviceDetail, error)
}

// FileService returns the content of one stored file
type FileService interface {
	GetFileContent(ctx context.Context, dev, name string) ([]byte, error)
}

// Hub is a single backend serving all three services
type Hub interface {
	DirectoryService
	DetailService
	FileService
}

// DeviceResult is the outcome of enriching one device. Err is set when the
// detail or content stage failed; Buoy then holds whatever was known.
type DeviceResult struct {
	Buoy  sfymodels.Buoy
	Stage sfymodels.Stage
	Err   error
}

// Failed reports whether a stage failed for this device
func (r DeviceResult) Failed() bool {
	return r.Err != nil
}

// Pipeline discovers devices and enriches them one at a time
type Pipeline struct {
	directory DirectoryService
	details   DetailService
	files     FileService
	logger    *logger.Logger
}

// New creates a pipeline over the three services
func New(directory DirectoryService, details DetailService, files FileService, log *logger.Logger) *Pipeline {
	return &Pipeline{
		directory: directory,
		details:   details,
		files:     files,
		logger:    log.WithComponent("pipeline"),
	}
}

// NewFromHub creates a pipeline backed by one hub
func NewFromHub(hub Hub, log *logger.Logger) *Pipeline {
	return New(hub, hub, hub, log)
}

// SelectTelemetryFile picks the most recently listed file ending in the axl suffix.
func SelectTelemetryFile(files []string) (string, bool) {
	for i := len(files) - 1; i >= 0; i-- {
		if strings.HasSuffix(files[i], sfymodels.AxlSuffix) {
			return files[i], true
		}
	}
	return "", false
}

// Run executes one discovery run. Devices are processed strictly in directory
// order and each result is emitted as soon as its detail and content fetches
// resolved; the next device is not started before that. A directory failure
// returns ErrDirectoryFailed before anything is emitted. Per-device failures are
// emitted as results and do not stop the run. Run returns the number of emitted
// results and ctx.Err() if it was cancelled.
func (p *Pipeline) Run(ctx context.Context, emit func(DeviceResult)) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	devices, err := p.directory.ListDevices(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("%w: %w", ErrDirectoryFailed, err)
	}

	p.logger.Logger.Info().Int("devices", len(devices)).Msg("Listed devices")

	seen := make(map[string]struct{}, len(devices))
	emitted := 0

	for _, dev := range devices {
		if err := ctx.Err(); err != nil {
			return emitted, err
		}

		if _, dup := seen[dev]; dup {
			p.logger.Logger.Warn().Str("dev", dev).Msg("Skipping duplicate device in directory listing")
			continue
		}
		seen[dev] = struct{}{}

		result := p.enrich(ctx, dev)

		// A fetch interrupted by cancellation is not a device failure.
		if err := ctx.Err(); err != nil {
			return emitted, err
		}

		if result.Failed() {
			p.logger.Logger.Warn().Err(result.Err).
				Str("dev", dev).
				Str("stage", string(result.Stage)).
				Msg("Device enrichment failed, continuing with next device")
		}

		emit(result)
		emitted++
	}

	return emitted, nil
}

// enrich runs the detail, file selection and content stages for one device
func (p *Pipeline) enrich(ctx context.Context, dev string) DeviceResult {
	detail, err := p.details.GetDeviceDetail(ctx, dev)
	if err != nil {
		return DeviceResult{
			Buoy:  sfymodels.UnreachableBuoy(dev, err),
			Stage: sfymodels.StageDetail,
			Err:   err,
		}
	}

	buoy := sfymodels.NewBuoy(dev, detail)

	name, ok := SelectTelemetryFile(buoy.Files)
	if !ok {
		p.logger.Logger.Debug().Str("dev", dev).Int("files", len(buoy.Files)).Msg("No axl package listed")
		return DeviceResult{Buoy: buoy, Stage: sfymodels.StageDetail}
	}

	p.logger.Logger.Debug().Str("dev", dev).Str("file", name).Msg("Fetching latest axl package")

	contentErr := func(err error) DeviceResult {
		buoy.Status = sfymodels.StatusTelemetryError
		buoy.Error = err.Error()
		return DeviceResult{Buoy: buoy, Stage: sfymodels.StageContent, Err: err}
	}

	raw, err := p.files.GetFileContent(ctx, dev, name)
	if err != nil {
		return contentErr(err)
	}

	pck, err := sfymodels.DecodeAxlPackage(raw)
	if err != nil {
		return contentErr(fmt.Errorf("file %s: %w", name, err))
	}

	if err := buoy.SetPackage(pck); err != nil {
		return contentErr(err)
	}

	return DeviceResult{Buoy: buoy, Stage: sfymodels.StageContent}
}

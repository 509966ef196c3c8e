package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/relais/pkg/bus"
	"github.com/rhuss/relais/pkg/debug"
)

// Envelope dispatch outcomes as recorded by the Recorder.
const (
	outcomeReplied  = "replied"
	outcomeError    = "error"
	outcomeRejected = "rejected"
	outcomeTable    = "table"
	outcomeShutdown = "shutdown"
)

// Settings configures one processor instance.
type Settings struct {
	// Name is the registration name on the bus, used in logs and for
	// targeted control envelopes. Defaults to "processor".
	Name string

	// Services are the bus service names the instance answers on. At
	// least one is required.
	Services []string

	// Models are pulled at startup when the backend does not already
	// have them. An empty list still triggers the startup listing as a
	// connectivity check.
	Models []string

	// AllowInsecurePull permits pulls from registries without verified
	// TLS.
	AllowInsecurePull bool
}

// Processor bridges one bus registration to the backend facade. All of
// its request handling runs on the single goroutine inside Run; the
// Adaptor and the routing-table copy are confined to that goroutine.
type Processor struct {
	backend  Backend
	bus      *bus.Bus
	factory  AdaptorFactory
	settings Settings
	rec      Recorder

	handle *bus.Handle
	table  bus.ServiceTable
}

// New assembles a processor instance. The backend, bus and factory must
// not be nil; rec may be nil to disable telemetry.
func New(b Backend, mbus *bus.Bus, factory AdaptorFactory, settings Settings, rec Recorder) (*Processor, error) {
	if b == nil {
		return nil, fmt.Errorf("processor: backend must not be nil")
	}
	if mbus == nil {
		return nil, fmt.Errorf("processor: bus must not be nil")
	}
	if factory == nil {
		return nil, fmt.Errorf("processor: adaptor factory must not be nil")
	}
	if len(settings.Services) == 0 {
		return nil, fmt.Errorf("processor: at least one service is required")
	}
	if settings.Name == "" {
		settings.Name = "processor"
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Processor{
		backend:  b,
		bus:      mbus,
		factory:  factory,
		settings: settings,
		rec:      rec,
	}, nil
}

// Settings returns the instance settings.
func (p *Processor) Settings() Settings { return p.settings }

// Backend returns the facade the instance dispatches to. Intended for
// adaptor factories that need backend access during construction.
func (p *Processor) Backend() Backend { return p.backend }

// ServiceTable returns the last routing-table snapshot the bus pushed.
// It is confined to the dispatch goroutine: only adaptor code running
// inside a translate call may use it.
func (p *Processor) ServiceTable() bus.ServiceTable { return p.table }

// Run provisions required models, registers on the bus, and dispatches
// envelopes until a shutdown envelope arrives (returns nil), the context
// is cancelled (returns ctx.Err()), or the bus contract is broken
// (returns a non-nil error). It must be called at most once.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.provision(ctx); err != nil {
		return fmt.Errorf("provisioning models: %w", err)
	}

	adaptor, err := p.factory(p)
	if err != nil {
		return fmt.Errorf("constructing adaptor: %w", err)
	}

	p.handle = p.bus.Register(p.settings.Name)
	if err := p.bus.Listen(p.handle, p.settings.Services...); err != nil {
		adaptor.Close()
		p.bus.Deregister(p.handle)
		return fmt.Errorf("listening on bus: %w", err)
	}

	slog.Info("processor ready",
		"name", p.settings.Name,
		"services", p.settings.Services,
	)

	return p.dispatch(ctx, adaptor)
}

// provision checks backend connectivity and pulls every required model
// the backend does not already have. The listing happens even with no
// required models so an unreachable backend fails the instance at
// startup rather than on the first request.
func (p *Processor) provision(ctx context.Context) error {
	models, err := p.backend.ListModels(ctx)
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(models))
	for _, m := range models {
		present[m.Name] = true
		present[m.Model] = true
	}

	for _, name := range p.settings.Models {
		if present[name] {
			debug.Log("processor", "model already present", "model", name)
			continue
		}
		slog.Info("pulling model", "model", name)
		status, err := p.backend.Pull(ctx, name, p.settings.AllowInsecurePull)
		if err != nil {
			return fmt.Errorf("pulling model %q: %w", name, err)
		}
		slog.Info("model pulled", "model", name, "status", status.Status)
	}
	return nil
}

// dispatch serializes envelope handling. One envelope is processed to
// completion before the next receive; the Adaptor is torn down exactly
// once on every exit path, before deregistration.
func (p *Processor) dispatch(ctx context.Context, adaptor Adaptor) error {
	defer p.bus.Deregister(p.handle)
	defer adaptor.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-p.handle.Queue():
			switch env.Kind {
			case bus.KindRequest:
				if err := p.handleRequest(ctx, adaptor, env.Request); err != nil {
					return err
				}
			case bus.KindServiceTable:
				p.table = env.Table
				p.rec.ObserveEnvelope(env.Kind.String(), outcomeTable)
				debug.Log("processor", "service table updated",
					"name", p.settings.Name,
					"services", len(env.Table),
				)
			case bus.KindShutdown:
				p.rec.ObserveEnvelope(env.Kind.String(), outcomeShutdown)
				slog.Info("processor shutting down", "name", p.settings.Name)
				return nil
			case bus.KindCommand, bus.KindConfig:
				// Legal on the bus, unsupported here. Reject loudly and
				// keep serving.
				p.rec.ObserveEnvelope(env.Kind.String(), outcomeRejected)
				slog.Error("unsupported control envelope",
					"name", p.settings.Name,
					"kind", env.Kind.String(),
					"detail", env.Detail,
				)
			default:
				// Response and Error envelopes belong to callers, never
				// to a processor queue.
				p.rec.ObserveEnvelope(env.Kind.String(), outcomeRejected)
				return fmt.Errorf("processor %s: %s envelope on dispatch queue", p.settings.Name, env.Kind)
			}
		}
	}
}

// handleRequest runs one request to completion: inbound translation,
// exactly one facade call, outbound translation, reply. Faults become
// error replies and never abort the loop; only a broken reply contract
// returns an error.
func (p *Processor) handleRequest(ctx context.Context, adaptor Adaptor, req *bus.Request) error {
	if req == nil {
		return fmt.Errorf("processor %s: request envelope without request", p.settings.Name)
	}

	debug.Log("processor", "request received",
		"id", req.ID,
		"service", req.Service,
		"sender", req.Sender,
		"bytes", len(req.Payload),
	)

	op, err := adaptor.TranslateRequest(req.Service, req.Payload)
	if err != nil {
		return p.reject(req, Classify(err))
	}

	res, err := p.invoke(ctx, op)
	if err != nil {
		return p.reject(req, Classify(err))
	}

	payload, err := adaptor.TranslateResponse(res)
	if err != nil {
		return p.reject(req, Classify(err))
	}

	if err := req.ReturnToSender(payload); err != nil {
		return fmt.Errorf("replying to request %s: %w", req.ID, err)
	}
	p.rec.ObserveEnvelope(bus.KindRequest.String(), outcomeReplied)
	return nil
}

// reject answers a request with the fault's bus representation.
func (p *Processor) reject(req *bus.Request, fault *Fault) error {
	slog.Warn("request failed",
		"id", req.ID,
		"service", req.Service,
		"fault", string(fault.Kind),
		"error", fault.Detail,
	)
	p.rec.ObserveEnvelope(bus.KindRequest.String(), outcomeError)
	if err := req.ReturnErrorToSender(fault.ServiceError()); err != nil {
		return fmt.Errorf("replying to request %s: %w", req.ID, err)
	}
	return nil
}

// invoke performs the single facade call an operation stands for.
func (p *Processor) invoke(ctx context.Context, op Operation) (Result, error) {
	start := time.Now()
	switch o := op.(type) {
	case ListModelsOp:
		models, err := p.backend.ListModels(ctx)
		p.rec.ObserveBackendCall("list", time.Since(start), err)
		if err != nil {
			return nil, err
		}
		return ModelsResult{Models: models}, nil

	case ModelInfoOp:
		info, err := p.backend.ShowModel(ctx, o.Name)
		p.rec.ObserveBackendCall("show", time.Since(start), err)
		if err != nil {
			return nil, err
		}
		return ModelInfoResult{Name: o.Name, Info: info}, nil

	case GenerateOp:
		resp, err := p.backend.Generate(ctx, o.Req)
		p.rec.ObserveBackendCall("generate", time.Since(start), err)
		if err != nil {
			return nil, err
		}
		p.rec.ObserveGenerate(resp)
		return GenerateResult{Resp: resp}, nil

	case EmbedOp:
		resp, err := p.backend.Embed(ctx, o.Req)
		p.rec.ObserveBackendCall("embed", time.Since(start), err)
		if err != nil {
			return nil, err
		}
		p.rec.ObserveEmbeddings(resp)
		return EmbedResult{Resp: resp}, nil

	default:
		return nil, fmt.Errorf("unsupported operation %T", op)
	}
}

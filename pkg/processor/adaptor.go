package processor

// Adaptor translates between the application's bus payload format and
// backend operations. It is the single integration point applications
// implement: the processor core never interprets payload bytes itself.
//
// An Adaptor is owned by one dispatch goroutine and is never called
// concurrently, so implementations may keep unguarded state.
type Adaptor interface {
	// TranslateRequest converts an inbound payload into the backend
	// operation it asks for. service is the bus service the request was
	// addressed to, which lets one adaptor speak for several services.
	TranslateRequest(service string, payload []byte) (Operation, error)

	// TranslateResponse converts a backend result into the outbound
	// payload returned to the sender.
	TranslateResponse(res Result) ([]byte, error)

	// Close releases adaptor resources. The processor calls it exactly
	// once, when the instance shuts down.
	Close() error
}

// AdaptorFactory constructs the Adaptor for one processor instance. It
// runs inside Run after provisioning and before the instance starts
// listening, so it may inspect the processor's settings and backend.
// A factory error is fatal to the instance.
type AdaptorFactory func(p *Processor) (Adaptor, error)

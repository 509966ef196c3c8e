// Package processor implements the dispatch core of relais. A Processor
// owns one dispatch goroutine that provisions required models at startup,
// registers on the message bus, and then serializes all request handling:
// translate the inbound payload through the application's Adaptor, invoke
// exactly one backend facade call, and reply to the sender. Failures are
// classified into a small fault taxonomy and answered as error replies;
// they never abort the loop.
package processor

// Package gateway implements the dispatch core of a fuzzing-as-a-service
// backend: a static catalog of languages, fuzzing engines, and runtime
// images; a resolver that validates submissions into compatibility
// triples; and a task dispatcher that publishes command envelopes on a
// durable queue and matches asynchronous results back to waiting callers
// by correlation id.
//
// # Quick Start
//
//	channels, err := mq.NewChannelPair(mqCfg, logger)
//	if err != nil { ... }
//	d, err := gateway.New(catalog.Default(), channels,
//	    gateway.WithLogger(logger),
//	)
//	if err != nil { ... }
//	go d.Run(ctx)
//
//	result, err := d.SubmitJob(ctx, task.Request{
//	    Language: "python",
//	    Engine:   "atheris",
//	    Kind:     "fuzzer.start",
//	    Payload:  payload,
//	})
//
// A rejection (unknown language, unsupported combination, no ready
// image) is returned synchronously as *resolve.Rejection without
// touching the queue. Transport failures and timeouts are surfaced as
// distinct errors so callers can pick a retry policy.
package gateway

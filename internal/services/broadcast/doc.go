// Package broadcast delivers a finalized post to a snapshot of recipients.
//
// Delivery semantics
//
// Recipients are processed in the order given. Each send is classified:
// forbidden, not-found and bad-request failures count against the recipient
// without retry; rate-limit and network failures are retried up to
// Config.RetryMax times after a backoff. A failure outside the classified set,
// or cancellation of the context, aborts the run and leaves the post in draft.
//
// After every recipient the dispatcher sleeps Config.SendDelay. With
// Config.Workers > 1 several recipients are in flight at once, each with the
// same pacing and retry rules; counts are still committed in one update.
//
// A post that is not a draft when the run starts, or that another run is
// already sending, fails with ErrAlreadyProcessed before anything is sent.
package broadcast

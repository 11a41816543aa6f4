// Package workflow drives jobs through the pipeline. A pool of workers each
// claims one queued job at a time and carries it through validation,
// normalization, encoding, verification, publishing, and cleanup before
// claiming the next. Retry budgets are enforced per stage; encoding and
// verification share one budget because a verification failure re-runs the
// encoder.
package workflow

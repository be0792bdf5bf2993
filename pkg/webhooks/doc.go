// Package webhooks delivers signed event notifications to registered
// endpoints. Delivery is at-least-once per subscriber with bounded
// retries; every attempt leaves a log row, and per-webhook counters are
// updated exactly once per trigger regardless of how many attempts ran.
package webhooks

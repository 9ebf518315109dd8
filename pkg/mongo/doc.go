// Package mongo connects to MongoDB with retries and exposes a readiness
// probe. The license/mongostore package keeps license records in it.
package mongo

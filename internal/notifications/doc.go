// Package notifications carries stage wake-ups between worker pools.
//
// A committed transition into a pending status publishes a Wakeup for the
// stage that claims it, so idle lanes of that stage poll at once instead of
// waiting for their next tick. Wake-ups are hints: the store stays the source
// of truth and a lost message only delays work until the next poll.
//
// With notifications.redis_addr set, wake-ups travel over Redis pub/sub and
// reach every worker host. Otherwise an in-process bus links the lanes of a
// single daemon.
package notifications

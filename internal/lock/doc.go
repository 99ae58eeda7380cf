// Package lock provides short-lived keyed mutual exclusion.
//
// The reminder scheduler takes one lock per record before it reads, hands off
// and marks a reminder, so overlapping scans (a manual trigger racing the daily
// run, or two replicas) cannot both deliver the same message. MemoryLocker
// covers a single process; RedisLocker extends the guarantee across replicas.
package lock

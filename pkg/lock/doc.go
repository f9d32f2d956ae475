/*
Package lock provides the single-flight registry guarding export runs.

An export key is "<tenant>:<report date>". Two runs for the same key would
race on the same record and overwrite the same objects, so the
orchestrator takes a lock on the key before it writes anything and holds
it until the run returns.

# Architecture

	┌──────────── export.Orchestrator ────────────┐
	│ GenerateDailyExport      Status             │
	└──────┬─────────────────────────┬────────────┘
	       │ TryAcquire / release    │ Held
	┌──────▼─────────────────────────▼────────────┐
	│                 Locker                       │
	└──────┬──────────────────────────┬────────────┘
	       │                          │
	┌──────▼──────────────┐   ┌───────▼──────────────────────┐
	│    LocalLocker      │   │        RedisLocker           │
	│ map[key]token       │   │ cleandoc:lock:<key> = token  │
	│ one process         │   │ SET NX PX, Lua release       │
	└─────────────────────┘   └──────────────────────────────┘

lock.driver selects the implementation: local (the default) or redis.

# Semantics

A Locker hands out at most one lock per key. TryAcquire never waits: a
held key fails at once with ErrLocked, which the orchestrator turns into
an "export in progress" rejection.

The returned ReleaseFunc is meant to be deferred so the key is freed on
success, error, panic and cancellation. Calling it more than once is
safe.

	release, err := locker.TryAcquire(ctx, "tenant-a:2026-03-01")
	if errors.Is(err, lock.ErrLocked) {
		return ErrExportInProgress
	}
	if err != nil {
		return err
	}
	defer release()

Held reports whether a key is locked right now. It backs the export
status endpoint and the "cleandoc export status" command, and its answer
may be stale by the time the caller reads it.

# LocalLocker

LocalLocker keeps the table in memory behind a mutex and covers a single
process. It is enough for the default single-node deployment, where the
API and the scheduler share one orchestrator. Len reports the number of
held keys for tests.

# RedisLocker

RedisLocker stores each key as cleandoc:lock:<key> with SET NX PX and a
random token, so several replicas share one lock table:

	acquire   SET cleandoc:lock:<key> <token> NX PX <ttl>
	release   EVAL "if GET == token then DEL" cleandoc:lock:<key> <token>
	held      EXISTS cleandoc:lock:<key>

Release runs a Lua script that deletes the key only while the token still
matches, so an expired holder cannot free a lock taken over by another
process. Release uses its own short timeout because the caller's context
may already be cancelled; a failed release is logged and the key expires
on its TTL.

The TTL, 30 minutes by default and lock.ttl in the configuration, bounds
how long a crashed holder keeps a key. It must exceed the longest export,
otherwise a slow run can lose its lock to a second run.

# Usage

	client, err := lock.OpenRedis(ctx, lock.RedisConfig{Addr: "redis:6379"})
	if err != nil {
		return err
	}
	locker := lock.NewRedisLocker(client, 45*time.Minute)
	defer locker.Close()

The Redis locker is registered with the health monitor through its Ping,
so /ready reports an unreachable Redis.

# Troubleshooting

An export that stays "in progress" after its process died is waiting for
the Redis TTL. Inspect the key with redis-cli GET cleandoc:lock:<key>;
deleting it frees the tenant at once.
*/
package lock

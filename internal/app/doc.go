// Package app is the composition root for recall.
//
// Open loads config.toml and prefs.toml, opens the log file and the SQLite
// action queue, and wires the notes client into the connectivity monitor,
// the archive coordinator, the replay watcher and the list poller. Start
// launches the background goroutines; Close flushes open undo windows into
// the queue before releasing storage.
//
//	Open()
//	  ├─> config.Load / prefs.Load
//	  ├─> logging.New
//	  ├─> storage.Open ─> actionqueue.Open
//	  ├─> connectivity.NewMonitor(client)
//	  ├─> archive.New(client, queue)
//	  └─> connectivity.NewWatcher(monitor, coordinator.Replay)
//
// The poller backs off exponentially (capped at 30 seconds) while list
// requests keep failing, and wakes early whenever an archive commits or is
// restored.
package app

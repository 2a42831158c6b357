// Package logtail reads the end of a tripsync log file and splits zap lines
// into their parts so the watch monitor can show recent activity.
//
// Both encodings produced by the logging package are understood. Console
// lines are tab separated:
//
//	15:04:05.000	INFO	tripsync.syncqueue	sync queue drained	{"applied": 1}
//
// JSON lines carry the same data under the "ts", "level", "logger" and "msg"
// keys. Anything else is returned as an Entry holding only Raw and Message.
package logtail

// Package command tokenises command lines and dispatches them.
//
// A line is first substituted ($NAME, $(NAME), locals before globals), then
// split into tokens. The verb (token 0) is resolved against the dispatcher's
// own special verbs and then against each Source in the order they were
// added: the built-in table, the extended table and the capability registry.
// The first source that does not answer NotHandled wins.
//
// The dispatcher keeps no per-call state apart from a depth counter, so
// handlers may call back into it (batch files, timers, device events, MQTT
// commands).
package command

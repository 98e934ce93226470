// Package platform hides the hardware behind a small interface: clock,
// sleep, random numbers, pin I/O, Wi-Fi status, filesystem, heap and chip
// identity, time sync and reboot.
//
// Two implementations are provided:
//   - Host runs on a desktop or Linux board with the real clock and an
//     afero filesystem rooted in a directory. Pin I/O is simulated in memory
//     unless a hardware backend (see linuxgpio) is supplied.
//   - Sim is a deterministic double for tests: the clock only moves when
//     Advance or Sleep is called, pin levels are set by the test, and the
//     filesystem lives in memory.
package platform

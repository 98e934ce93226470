// Package sensor keeps the registry of scalar measurement sources.
//
// Sensors get a small integer id, allocated densely from 0, that stays
// stable for the sensor's lifetime. Each sensor has a Reader; the registry's
// Update, called from the cooperative loop, reads a sensor again once its
// conversion interval has elapsed. VarReader computes a value from a shell
// variable; hardware drivers (see the modbus subpackage) provide their own
// Reader and register into the same registry.
package sensor

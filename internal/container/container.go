// Package container manages LUKS containers and their boot-time auto-unlock
// configuration.
package container

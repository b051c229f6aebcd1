// Package pool tracks live socket connections per endpoint address and
// multiplexes logical subscribers onto them with reference counting.
//
// The pool is the single owner of the shutdown signal: Kill cancels its
// context irreversibly and every consumer observes it via Done or Alive.
// Kill never closes sockets itself; managers wind down on their own.
package pool

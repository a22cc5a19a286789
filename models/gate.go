package models

import (
	"sync"
)

type waiter struct {
	sync.Mutex
	cb []chan int
}

func (w *waiter) Add() chan int {
	w.Lock()
	ret := make(chan int)
	w.cb = append(w.cb, ret)
	w.Unlock()
	return ret
}

func (w *waiter) Notify() {
	w.Lock()
	for _, c := range w.cb {
		c <- 1
	}
	if w.cb != nil {
		w.cb = w.cb[:0]
	}
	w.Unlock()
}

// Gate synchronizes the run loop with callers on other goroutines. The
// engine holds the gate while executing; Start and Stop bracket a run and
// wake anyone blocked in UnlockStart or StopLock.
type Gate struct {
	sync.Mutex
	wg sync.WaitGroup

	start, stop waiter
}

// Start locks the gate for a run and wakes start waiters.
func (g *Gate) Start() {
	g.Lock()
	g.start.Notify()
	g.wg.Wait()
}

// Stop wakes stop waiters and releases the gate.
func (g *Gate) Stop() {
	g.stop.Notify()
	g.Unlock()
	g.wg.Wait()
}

// StopLock blocks until the engine stops, then takes the gate.
func (g *Gate) StopLock() {
	g.wg.Add(1)
	<-g.stop.Add()
	g.Lock()
	g.wg.Done()
}

// UnlockStart releases the gate and blocks until the engine starts.
func (g *Gate) UnlockStart() {
	block := g.start.Add()
	g.Unlock()
	<-block
}

// UnlockStop releases the gate and blocks until the engine stops.
func (g *Gate) UnlockStop() {
	block := g.stop.Add()
	g.Unlock()
	<-block
}

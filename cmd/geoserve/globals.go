package main

import (
	"sync"

	"github.com/carbocation/exprnorm/geo"
	"github.com/carbocation/exprnorm/outputs"
)

type Global struct {
	log logger

	Site string

	browser *geo.Browser
	hub     *outputs.Hub

	// tableMu serializes requests that change the browser's selection.
	tableMu sync.Mutex
}

type logger interface {
	Print(v ...interface{})
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

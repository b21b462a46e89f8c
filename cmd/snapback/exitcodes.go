package main

const (
	exitSuccess     = 0
	exitConfigFatal = 1
	exitUsageError  = 2
	exitInterrupted = 130
)

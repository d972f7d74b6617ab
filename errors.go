package deckdoc

import "errors"

var (
	// ErrInvalidInput is returned when the uploaded file is not a readable
	// PowerPoint presentation.
	ErrInvalidInput = errors.New("deckdoc: invalid input presentation")

	// ErrNoSlides is returned for a presentation without slides.
	ErrNoSlides = errors.New("deckdoc: presentation has no slides")

	// ErrLLMUnavailable is returned when the LLM provider cannot be reached
	// for any slide.
	ErrLLMUnavailable = errors.New("deckdoc: LLM provider unavailable")

	// ErrLLMRequestFailed is returned when the LLM provider rejects requests
	// (bad credentials, unknown deployment or model).
	ErrLLMRequestFailed = errors.New("deckdoc: LLM request failed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("deckdoc: invalid configuration")

	// ErrConversionNotFound is returned when a conversion ID does not exist.
	ErrConversionNotFound = errors.New("deckdoc: conversion not found")

	// ErrStoreDisabled is returned by history operations when the converter
	// runs without a database.
	ErrStoreDisabled = errors.New("deckdoc: conversion history is disabled")

	// ErrAssemblyFailed is returned when the output document cannot be built.
	ErrAssemblyFailed = errors.New("deckdoc: document assembly failed")
)

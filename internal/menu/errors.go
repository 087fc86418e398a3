package menu

import "errors"

var (
	// ErrDiscoveryEmpty means the listing page yielded no fragments and no
	// product links.
	ErrDiscoveryEmpty = errors.New("menu: no items discovered on listing page")
	// ErrNoneExtracted means items were discovered but every one failed.
	ErrNoneExtracted = errors.New("menu: no item could be extracted")
	// ErrExtractionEmpty means a product page or fragment had no resolvable
	// name and was skipped.
	ErrExtractionEmpty = errors.New("menu: item has no name")
	// ErrPanelRevealTimeout means the detailed nutrition panel did not appear
	// after activating its toggle.
	ErrPanelRevealTimeout = errors.New("menu: nutrition panel did not appear")
)

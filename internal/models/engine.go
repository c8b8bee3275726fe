package models

import "time"

// EngineName identifies a fetch strategy (§3 "Engine").
type EngineName string

const (
	EngineFetch            EngineName = "fetch"
	EngineBrowserCDP       EngineName = "browser-cdp"
	EngineBrowserPlaywright EngineName = "browser-playwright"
	EngineTLSClient        EngineName = "tls-client"
	EnginePDFParser        EngineName = "pdf-parser"
	EngineIndex            EngineName = "index"
	EngineIndexDocuments   EngineName = "index;documents"
)

// EngineDescriptor is the static catalog entry for an engine (§4.C).
type EngineDescriptor struct {
	Name                EngineName
	SupportedFlags      FeatureSet
	UnsupportedFlagCost int // relative cost penalty per missing-but-degradable flag
	Quality             int
	TypicalTimeMS       int
	MaxReasonableTimeMS int
	IsIndexLookup       bool // true for engines that never perform a live fetch
}

// EngineScrapeResult is what a concrete engine returns to the orchestrator
// for one attempt (§4.E, §9 "Engine polymorphism").
type EngineScrapeResult struct {
	Engine             EngineName
	StatusCode         int
	FinalURL           string
	RawHTML            string
	PDFBytes           []byte
	NumPages           int
	Screenshot         string // data URI
	ActionResults      *ActionResults
	UnsupportedFeatures []FeatureFlag
	Duration           time.Duration
}

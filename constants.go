package pcache

import "github.com/siisee11/pmdfc-go/internal/wire"

// Re-export wire constants for the public API.
const (
	PageSize              = wire.PageSize
	MetadataSize          = wire.MetadataSize
	NumEntry              = wire.NumEntry
	MaxNode               = wire.MaxNode
	MaxProcess            = wire.MaxProcess
	PerNodeMetaRegionSize = wire.PerNodeMetaRegionSize
	LocalMetaRegionSize   = wire.LocalMetaRegionSize
)

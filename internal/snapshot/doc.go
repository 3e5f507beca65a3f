// Package snapshot defines the exported keyboard configuration document.
//
// A snapshot carries the global system and lighting blocks, one entry per
// physical key (location, layer remaps, performance, advanced-key configs and
// per-key color) and the macro library. Its JSON shape is the file format of
// `keytune export` and `keytune import`:
//
//	{
//	  "system":    {"rateOfReturn": 3, "topDeadBandSwitch": 0, ...},
//	  "light":     {"main": {...}, "logo": {...}, "other": {...}},
//	  "keyboards": [{"col": 0, "row": 0, "keyValue": 4, "performance": {...},
//	                 "advancedKeys": {...}, "customKeys": {"fn0": null, ...},
//	                 "light": {"custom": {"R": 255, "G": 255, "B": 255, "key": 4}}}],
//	  "macro":     {"list": [...], "v2list": []}
//	}
//
// Unmarshal checks the document shape; Validate range-checks the values
// before anything is written to a keyboard.
package snapshot

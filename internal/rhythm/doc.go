// Package rhythm classifies ordered peak timestamps as periodic knocking or
// incidental noise, scoring confidence from interval regularity and peak
// coverage of the clip.
package rhythm

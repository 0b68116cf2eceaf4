// Package dedupe provides a bounded cache of seen stream fragment markers.
package dedupe

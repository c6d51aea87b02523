// Package domain holds the core entities of the newsletter engine:
// subscribers, campaigns, and their lifecycle enums. It has no dependencies
// on persistence or transport and is imported by every other layer.
package domain

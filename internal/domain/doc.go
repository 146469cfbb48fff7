// Package domain holds the entity records the tracker projects statuses
// onto. The records themselves are owned by the remote content service; the
// coordinator only carries the fields the presentation layer displays.
package domain

// Package mailbox is the MQTT-backed control channel between qdmacore
// instances managing the same card.
//
// Each attached device gets two topics keyed by its packed bus address:
//
//	qdmacore/dev/{bdf}/status   retained presence announcements
//	qdmacore/dev/{bdf}/mbox     peer-to-peer messages
//
// Init subscribes the device to its mbox topic and announces it as
// attached. Start publishes the online announcement; a subordinate
// instance uses this to make itself visible to its controlling peer.
// Cleanup retracts the announcement and unsubscribes, and tolerates being
// called on a device Init never touched.
package mailbox

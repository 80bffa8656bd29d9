// Package sriov holds the role-specific virtualization strategies.
//
// A controlling instance owns the card's physical function: its strategy
// programs the virtual-function budget into the device on online and
// clears it on offline. A subordinate instance drives one virtual
// function: its strategy announces the function to the controlling peer
// over the mailbox channel and retracts the announcement on offline.
//
// The lifecycle manager selects one strategy at configuration time;
// there is no runtime role switching.
package sriov

// Blkcheck is a raw block device integrity checker. It fills a device with
// self-describing checksummed sector records, verifies them later and can
// inject faults to exercise the failure paths of virtual disk stacks.
package blkcheck

// Version is set by build scripts, do not touch.
var Version string

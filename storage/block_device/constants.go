package block_device

var (
	// SectorUnit is the unit the kernel reports device sizes in.
	SectorUnit uint64 = 512

	// SysfsBlockPath is where the kernel exports per-device attributes.
	SysfsBlockPath = "/sys/class/block"
)

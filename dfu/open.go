package dfu

// InterfaceDescriptor is the narrow view of a USB interface descriptor
// Open needs to recognize the DFU-mode interface, independent of any
// transport package's own descriptor struct (§4.2).
type InterfaceDescriptor struct {
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
}

const (
	interfaceSubclassDFU        uint8 = 0x01
	interfaceProtocolDFUMode    uint8 = 0x02
	descriptorTypeDFUFunctional uint8 = 0x21

	interfaceDescriptorLen int = 9
)

// Open implements the interface-open descriptor walk (§4.2). It is
// invoked by the USB stack during enumeration with the interface
// descriptor it found and however many descriptor bytes remain after
// it; Open validates the interface is this DFU-mode instance and
// claims the interface descriptor itself plus an optional trailing
// functional descriptor, returning the total number of bytes
// consumed. A return of 0 means "not mine" — the stack should leave
// remaining untouched and try the next driver.
func (c *Context) Open(itf InterfaceDescriptor, remaining []byte) int {
	if itf.BInterfaceSubClass != interfaceSubclassDFU || itf.BInterfaceProtocol != interfaceProtocolDFUMode {
		return 0
	}
	if len(remaining) >= 2 && remaining[1] == descriptorTypeDFUFunctional {
		return interfaceDescriptorLen + int(remaining[0])
	}
	return interfaceDescriptorLen
}

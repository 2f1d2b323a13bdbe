package usb

import (
	"bytes"
	"fmt"
	"unsafe"

	"github.com/go-usb/virtualdfu/dfu"
	"github.com/go-usb/virtualdfu/usbip"
	"github.com/go-usb/virtualdfu/util"
)

var usbLogger = util.NewLogger("[USB] ", util.LogLevelTrace)

// Device adapts a dfu.Context to the usbip.USBIPDevice transport
// interface, answering standard descriptor requests itself and routing
// every DFU class request and interface-recipient standard request into
// the state machine's control-transfer dispatcher.
type Device struct {
	busID   string
	index   int
	context *dfu.Context
}

func NewDevice(context *dfu.Context) *Device {
	return &Device{
		busID:   "2-2",
		index:   0,
		context: context,
	}
}

func (device *Device) BusID() string {
	return device.busID
}

func (device *Device) DeviceSummary() usbip.USBIPDeviceSummary {
	summary := usbip.USBIPDeviceSummary{
		Header: usbip.USBIPDeviceSummaryHeader{
			Busnum:              2,
			Devnum:              2,
			Speed:               2,
			IdVendor:            device.deviceDescriptor().IDVendor,
			IdProduct:           device.deviceDescriptor().IDProduct,
			BcdDevice:           device.deviceDescriptor().BcdDevice,
			BDeviceClass:        device.deviceDescriptor().BDeviceClass,
			BDeviceSubclass:     device.deviceDescriptor().BDeviceSubclass,
			BDeviceProtocol:     device.deviceDescriptor().BDeviceProtocol,
			BConfigurationValue: 0,
			BNumConfigurations:  1,
			BNumInterfaces:      1,
		},
		DeviceInterface: usbip.USBIPDeviceInterface{
			BInterfaceClass:    InterfaceClassApplicationSpecific,
			BInterfaceSubclass: InterfaceSubclassDFU,
			Padding:            0,
		},
	}
	copy(summary.Header.Path[:], []byte(fmt.Sprintf("/device/%d", device.index)))
	copy(summary.Header.BusID[:], []byte(device.busID))
	return summary
}

func (device *Device) RemoveWaitingRequest(id uint32) bool {
	// DFU is driven entirely over the control endpoint; there is nothing
	// asynchronous to cancel.
	return false
}

func (device *Device) HandleMessage(id uint32, onFinish func(response []byte), endpoint uint32, setupBytes []byte, transferBuffer []byte) {
	setup := util.ReadBE[SetupPacket](bytes.NewBuffer(setupBytes))
	usbLogger.Printf("CONTROL MESSAGE - ENDPOINT %d: %s\n\n", endpoint, setup)
	if endpoint != uint32(EndpointControl) {
		util.Panic(fmt.Sprintf("Invalid USB endpoint for a DFU device: %d", endpoint))
	}
	if setup.Recipient() == RequestRecipientDevice {
		device.handleDeviceRequest(setup, transferBuffer, onFinish)
		return
	}
	req := dfu.ControlRequest{
		RecipientInterface: setup.Recipient() == RequestRecipientInterface,
		Standard:           setup.RequestClass() == RequestClassStandard,
		Class:              setup.RequestClass() == RequestClassClass,
		BRequest:           uint8(setup.BRequest),
		HostToDevice:       setup.Direction() == HostToDevice,
		WValue:             setup.WValue,
		WIndex:             setup.WIndex,
		WLength:            setup.WLength,
	}
	response, stall := device.context.ControlTransfer(req, transferBuffer[:setup.WLength])
	if stall {
		usbLogger.Printf("CONTROL TRANSFER STALLED: %s\n\n", setup)
		onFinish(nil)
		return
	}
	onFinish(response)
}

func (device *Device) handleDeviceRequest(setup SetupPacket, transferBuffer []byte, onFinish func([]byte)) {
	switch setup.BRequest {
	case RequestGetDescriptor:
		descriptorType, descriptorIndex := GetDescriptorTypeAndIndex(setup.WValue)
		descriptor := device.getDescriptor(descriptorType, descriptorIndex)
		copy(transferBuffer, descriptor)
		onFinish(transferBuffer)
	case RequestSetConfiguration:
		config := device.configurationDescriptor()
		itf := device.interfaceDescriptor()
		consumed := device.context.Open(
			dfu.InterfaceDescriptor{BInterfaceSubClass: itf.BInterfaceSubclass, BInterfaceProtocol: itf.BInterfaceProtocol},
			config[int(util.SizeOf[ConfigurationDescriptor]())+int(util.SizeOf[InterfaceDescriptor]()):],
		)
		usbLogger.Printf("SET_CONFIGURATION: DFU interface open consumed %d descriptor bytes\n\n", consumed)
		onFinish(nil)
	case RequestGetStatus:
		copy(transferBuffer, []byte{1, 0})
		onFinish(transferBuffer)
	case RequestSetAddress:
		onFinish(nil)
	default:
		util.Panic(fmt.Sprintf("Invalid device-recipient bRequest: %d", setup.BRequest))
	}
}

func (device *Device) getDescriptor(descriptorType DescriptorType, index uint8) []byte {
	usbLogger.Printf("GET DESCRIPTOR: Type: %s Index: %d\n\n", descriptorType, index)
	switch descriptorType {
	case DescriptorDevice:
		descriptor := device.deviceDescriptor()
		return util.ToLE(descriptor)
	case DescriptorConfiguration:
		return device.configurationDescriptor()
	case DescriptorString:
		message := device.stringDescriptor(index)
		header := StringDescriptorHeader{
			BDescriptorType: DescriptorString,
		}
		header.BLength = uint8(unsafe.Sizeof(header)) + uint8(len(message))
		return util.Concat(util.ToLE(header), message)
	default:
		util.Panic(fmt.Sprintf("Invalid descriptor type: %d", descriptorType))
	}
	return nil
}

func (device *Device) deviceDescriptor() DeviceDescriptor {
	return DeviceDescriptor{
		BLength:            util.SizeOf[DeviceDescriptor](),
		BDescriptorType:    DescriptorDevice,
		BcdUSB:             0x0110,
		BDeviceClass:       0,
		BDeviceSubclass:    0,
		BDeviceProtocol:    0,
		BMaxPacketSize:     64,
		IDVendor:           0x1209, // pid.codes test VID
		IDProduct:          0x0001,
		BcdDevice:          0x0100,
		IManufacturer:      1,
		IProduct:           2,
		ISerialNumber:      3,
		BNumConfigurations: 1,
	}
}

func (device *Device) interfaceDescriptor() InterfaceDescriptor {
	protocol := uint8(InterfaceProtocolRuntimeMode)
	if device.context.Mode() == dfu.ModeDFU {
		protocol = InterfaceProtocolDFUMode
	}
	return InterfaceDescriptor{
		BLength:            util.SizeOf[InterfaceDescriptor](),
		BDescriptorType:    DescriptorInterface,
		BInterfaceNumber:   0,
		BAlternateSetting:  0,
		BNumEndpoints:      0,
		BInterfaceClass:    InterfaceClassApplicationSpecific,
		BInterfaceSubclass: InterfaceSubclassDFU,
		BInterfaceProtocol: protocol,
		IInterface:         5,
	}
}

func (device *Device) dfuFunctionalDescriptor() DFUFunctionalDescriptor {
	attrs := device.context.Attributes()
	return DFUFunctionalDescriptor{
		BLength:         util.SizeOf[DFUFunctionalDescriptor](),
		BDescriptorType: DescriptorDFUFunctional,
		BmAttributes:    attrs.Encode(),
		WDetachTimeOut:  attrs.DetachTimeout,
		WTransferSize:   attrs.TransferSize,
		BcdDFUVersion:   0x0110,
	}
}

func (device *Device) configurationDescriptor() []byte {
	buffer := new(bytes.Buffer)
	interfaceDescriptor := device.interfaceDescriptor()
	buffer.Write(util.ToLE(interfaceDescriptor))
	functional := device.dfuFunctionalDescriptor()
	buffer.Write(util.ToLE(functional))
	body := buffer.Bytes()
	config := ConfigurationDescriptor{
		BLength:             util.SizeOf[ConfigurationDescriptor](),
		BDescriptorType:     DescriptorConfiguration,
		WTotalLength:        uint16(util.SizeOf[ConfigurationDescriptor]()) + uint16(len(body)),
		BNumInterfaces:      1,
		BConfigurationValue: 0,
		IConfiguration:      4,
		BmAttributes:        ConfigAttributeBase | ConfigAttributeSelfPowered,
		BMaxPower:           0,
	}
	return append(util.ToLE(config), body...)
}

func (device *Device) stringDescriptor(index uint8) []byte {
	switch index {
	case 0:
		return util.ToLE[uint16](LangIDEngUSA)
	case 1:
		return util.Utf16encode("No Company")
	case 2:
		return util.Utf16encode("Virtual DFU Device")
	case 3:
		return util.Utf16encode("No Serial Number")
	case 4:
		return util.Utf16encode("DFU Configuration")
	case 5:
		return util.Utf16encode("DFU Interface")
	default:
		util.Panic(fmt.Sprintf("Invalid string descriptor index: %d", index))
	}
	return nil
}

package usb

import "testing"

func TestSetupPacketDirection(t *testing.T) {
	setup := SetupPacket{}
	setup.SetDirection(DeviceToHost)
	if setup.Direction() != DeviceToHost {
		t.Fatalf("Direction() = %v, want DeviceToHost", setup.Direction())
	}
	setup.SetDirection(HostToDevice)
	if setup.Direction() != HostToDevice {
		t.Fatalf("Direction() = %v, want HostToDevice", setup.Direction())
	}
}

// A DFU DNLOAD setup packet's bmRequestType is 0x21: direction
// host-to-device, type class, recipient interface.
func TestSetupPacketDFURequestType(t *testing.T) {
	setup := SetupPacket{BmRequestType: 0x21}
	if setup.Direction() != HostToDevice {
		t.Fatalf("Direction() = %v, want HostToDevice", setup.Direction())
	}
	if setup.RequestClass() != RequestClassClass {
		t.Fatalf("RequestClass() = %v, want RequestClassClass", setup.RequestClass())
	}
	if setup.Recipient() != RequestRecipientInterface {
		t.Fatalf("Recipient() = %v, want RequestRecipientInterface", setup.Recipient())
	}
}

func TestSetupPacketRoundTrip(t *testing.T) {
	setup := SetupPacket{}
	setup.SetDirection(DeviceToHost)
	setup.SetRequestClass(RequestClassVendor)
	setup.SetRecipient(RequestRecipientEndpoint)

	if setup.Direction() != DeviceToHost {
		t.Fatalf("Direction() = %v, want DeviceToHost", setup.Direction())
	}
	if setup.RequestClass() != RequestClassVendor {
		t.Fatalf("RequestClass() = %v, want RequestClassVendor", setup.RequestClass())
	}
	if setup.Recipient() != RequestRecipientEndpoint {
		t.Fatalf("Recipient() = %v, want RequestRecipientEndpoint", setup.Recipient())
	}
}

func TestGetDescriptorTypeAndIndex(t *testing.T) {
	descType, index := GetDescriptorTypeAndIndex(uint16(DescriptorString)<<8 | 2)
	if descType != DescriptorString {
		t.Fatalf("descriptorType = %v, want DescriptorString", descType)
	}
	if index != 2 {
		t.Fatalf("descriptorIndex = %d, want 2", index)
	}
}

func TestDFUAttributeBits(t *testing.T) {
	attrs := DFUAttrCanDnload | DFUAttrCanUpload | DFUAttrManifestTolerant
	if attrs&DFUAttrWillDetach != 0 {
		t.Fatal("DFUAttrWillDetach should not be set")
	}
	if attrs&DFUAttrCanDnload == 0 {
		t.Fatal("DFUAttrCanDnload should be set")
	}
}

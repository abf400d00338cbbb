//go:build linux

package network

import (
	"context"
	"fmt"
	"net"
	"path/filepath"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/dockervirt/dockervirt/pkg/virt"
)

// ifNameLen bounds interface names to the kernel's IFNAMSIZ budget once the
// three-character prefix is added.
const ifNameLen = 11

// VethDriver is the generic VIF backend: a veth pair per interface, the host
// end enslaved to the VIF's bridge, the peer end moved into the container's
// network namespace at attach time.
type VethDriver struct {
	// NetnsDir is where container namespaces are linked by container ID.
	NetnsDir string
}

func NewVethDriver(netnsDir string) *VethDriver {
	return &VethDriver{NetnsDir: netnsDir}
}

func vethNames(vif *virt.VIF) (host, peer string) {
	id := vif.ID
	if len(id) > ifNameLen {
		id = id[:ifNameLen]
	}
	return "tap" + id, "ns-" + id
}

// Plug creates the veth pair for a VIF and enslaves the host end to the
// bridge. Already-plugged VIFs are a no-op so retried spawns converge.
func (d *VethDriver) Plug(ctx context.Context, instance *virt.Instance, vif *virt.VIF) error {
	hostName, peerName := vethNames(vif)

	if _, err := netlink.LinkByName(hostName); err == nil {
		return nil
	} else if _, ok := err.(netlink.LinkNotFoundError); !ok {
		return fmt.Errorf("find link %q: %w", hostName, err)
	}

	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: hostName},
		PeerName:  peerName,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return fmt.Errorf("create veth pair %q/%q: %w", hostName, peerName, err)
	}

	host, err := netlink.LinkByName(hostName)
	if err != nil {
		return fmt.Errorf("find created link %q: %w", hostName, err)
	}
	if vif.Bridge != "" {
		bridge, err := netlink.LinkByName(vif.Bridge)
		if err != nil {
			return fmt.Errorf("find bridge %q: %w", vif.Bridge, err)
		}
		if err = netlink.LinkSetMaster(host, bridge); err != nil {
			return fmt.Errorf("enslave %q to bridge %q: %w", hostName, vif.Bridge, err)
		}
	}
	if err = netlink.LinkSetUp(host); err != nil {
		return fmt.Errorf("set link %q up: %w", hostName, err)
	}
	return nil
}

// Unplug deletes the veth pair. The peer end goes with the host end, wherever
// it currently lives. Missing links are a no-op.
func (d *VethDriver) Unplug(ctx context.Context, instance *virt.Instance, vif *virt.VIF) error {
	hostName, _ := vethNames(vif)
	link, err := netlink.LinkByName(hostName)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("find link %q: %w", hostName, err)
	}
	if err = netlink.LinkDel(link); err != nil {
		return fmt.Errorf("delete link %q: %w", hostName, err)
	}
	return nil
}

// Attach moves the peer end into the container's namespace, renames it to the
// next free ethN, and configures address, MAC, gateway and link state.
func (d *VethDriver) Attach(ctx context.Context, instance *virt.Instance, vif *virt.VIF, containerID string, secondary bool) error {
	_, peerName := vethNames(vif)

	peer, err := netlink.LinkByName(peerName)
	if err != nil {
		return fmt.Errorf("find peer link %q: %w", peerName, err)
	}

	nsHandle, err := netns.GetFromPath(filepath.Join(d.NetnsDir, containerID))
	if err != nil {
		return fmt.Errorf("open netns of container %q: %w", containerID, err)
	}
	defer nsHandle.Close()

	if err = netlink.LinkSetNsFd(peer, int(nsHandle)); err != nil {
		return fmt.Errorf("move %q into container %q: %w", peerName, containerID, err)
	}

	handle, err := netlink.NewHandleAt(nsHandle)
	if err != nil {
		return fmt.Errorf("netlink handle in netns of container %q: %w", containerID, err)
	}
	defer handle.Close()

	link, err := handle.LinkByName(peerName)
	if err != nil {
		return fmt.Errorf("find %q in container %q: %w", peerName, containerID, err)
	}

	name, err := nextEthName(handle)
	if err != nil {
		return err
	}
	if err = handle.LinkSetName(link, name); err != nil {
		return fmt.Errorf("rename %q to %q: %w", peerName, name, err)
	}
	if link, err = handle.LinkByName(name); err != nil {
		return fmt.Errorf("find renamed link %q: %w", name, err)
	}

	if vif.MAC != "" {
		mac, err := net.ParseMAC(vif.MAC)
		if err != nil {
			return fmt.Errorf("parse MAC %q: %w", vif.MAC, err)
		}
		if err = handle.LinkSetHardwareAddr(link, mac); err != nil {
			return fmt.Errorf("set MAC on %q: %w", name, err)
		}
	}
	for _, cidr := range vif.IPs {
		addr, err := netlink.ParseAddr(cidr)
		if err != nil {
			return fmt.Errorf("parse address %q: %w", cidr, err)
		}
		if err = handle.AddrAdd(link, addr); err != nil {
			return fmt.Errorf("add address %q to %q: %w", cidr, name, err)
		}
	}
	if err = handle.LinkSetUp(link); err != nil {
		return fmt.Errorf("set %q up: %w", name, err)
	}

	// Only the primary interface installs the default route.
	if vif.Gateway != "" && !secondary && name == "eth0" {
		gw := net.ParseIP(vif.Gateway)
		if gw == nil {
			return fmt.Errorf("parse gateway %q", vif.Gateway)
		}
		if err = handle.RouteAdd(&netlink.Route{
			LinkIndex: link.Attrs().Index,
			Gw:        gw,
		}); err != nil {
			return fmt.Errorf("add default route via %q: %w", vif.Gateway, err)
		}
	}
	return nil
}

// nextEthName returns the lowest ethN name not taken inside the namespace.
func nextEthName(handle *netlink.Handle) (string, error) {
	links, err := handle.LinkList()
	if err != nil {
		return "", fmt.Errorf("list links: %w", err)
	}
	taken := map[string]struct{}{}
	for _, l := range links {
		taken[l.Attrs().Name] = struct{}{}
	}
	for i := 0; ; i++ {
		name := fmt.Sprintf("eth%d", i)
		if _, ok := taken[name]; !ok {
			return name, nil
		}
	}
}

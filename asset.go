package cabintwin

import (
	"encoding/gob"
	"fmt"
)

func init() {
	gob.Register(Truck{})
	gob.Register(Cabin{})
	gob.Register(Part{})
	gob.Register(Sensor{})
}

// Truck is the root of an asset graph, identified by its vehicle identification
// number.
type Truck struct {
	InformationElement
	VIN string
}

func (t Truck) String() string { return fmt.Sprintf("(truck %s)", t.VIN) }

// Cabin is the driver's cabin of a truck.
type Cabin struct {
	InformationElement
	VIN      string
	Position string
}

func (c Cabin) String() string { return fmt.Sprintf("(cabin %s/%s)", c.VIN, c.Position) }

// Part is a monitored cabin component. Its life is consumed by the damage the
// sensors attached to it record.
type Part struct {
	InformationElement
	VIN      string
	Name     string
	Material string
}

func (p Part) String() string { return fmt.Sprintf("(part %s/%s)", p.VIN, p.Name) }

// Sensor is a transducer mounted on a Part, measuring a single Channel.
type Sensor struct {
	InformationElement
	VIN     string
	Part    string
	Channel Channel
	Unit    string
}

func (s Sensor) String() string { return fmt.Sprintf("(sensor %s/%s/%s)", s.VIN, s.Part, s.Channel) }

// SunVisorPart names the cabin component this twin monitors.
const SunVisorPart = "sunvisor"

// CabinAssembly returns the canonical asset graph of a monitored truck:
//
//	Truck ─► Cabin ─► Part(sun visor) ─► Sensor (one per channel)
//
// The truck is the only root, so the assembly's ComponentID depends on the VIN
// alone.
func CabinAssembly(vin string) Assembly {
	var b AssemblyBuilder
	truck := Truck{VIN: vin}
	cabin := Cabin{VIN: vin, Position: "front"}
	visor := Part{VIN: vin, Name: SunVisorPart, Material: "ABS"}

	b.Roots(truck)
	b.Connect(truck, cabin)
	b.Connect(cabin, visor)
	for _, c := range channels {
		b.Connect(visor, Sensor{VIN: vin, Part: visor.Name, Channel: c, Unit: c.Unit()})
	}
	return b.Assemble()
}

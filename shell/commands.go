package shell

import (
	"github.com/nasa-jpl/stepperctl/stepper"
)

func (sh *Shell) commandTable() []Command {
	dev := []Enumerator{sh.deviceNames}
	devMicroStep := []Enumerator{sh.deviceNames, MicroStepSymbols.Enumerate}
	devDir := []Enumerator{sh.deviceNames, DirectionSymbols.Enumerate}
	return []Command{
		{Name: "enable", Syntax: "<device> <on/off>", Help: "Enable or disable the motor",
			Args: 3, Params: dev, handler: cmdEnable},
		{Name: "move", Syntax: "<device> <micro_steps>", Help: "Move by a relative number of micro-steps",
			Args: 3, Params: dev, handler: cmdMove},
		{Name: "set_max_velocity", Syntax: "<device> <velocity>", Help: "Set the velocity in micro-steps per second",
			Args: 3, Params: dev, handler: cmdSetMaxVelocity},
		{Name: "set_micro_step_res", Syntax: "<device> <resolution>", Help: "Set the micro-step resolution",
			Args: 3, Params: devMicroStep, handler: cmdSetMicroStepRes},
		{Name: "get_micro_step_res", Syntax: "<device>", Help: "Get the micro-step resolution",
			Args: 2, Params: dev, handler: cmdGetMicroStepRes},
		{Name: "set_actual_position", Syntax: "<device> <position>", Help: "Redefine the actual position",
			Args: 3, Params: dev, handler: cmdSetActualPosition},
		{Name: "get_actual_position", Syntax: "<device>", Help: "Get the actual position",
			Args: 2, Params: dev, handler: cmdGetActualPosition},
		{Name: "set_target_position", Syntax: "<device> <micro_steps>", Help: "Move to an absolute position",
			Args: 3, Params: dev, handler: cmdSetTargetPosition},
		{Name: "enable_constant_velocity_mode", Syntax: "<device> <direction> <velocity>", Help: "Run continuously in a direction",
			Args: 4, Params: devDir, handler: cmdEnableConstantVelocityMode},
		{Name: "info", Syntax: "<device>", Help: "Show position, resolution and motion state",
			Args: 2, Params: dev, handler: cmdInfo},
	}
}

// reportErr prints the status code of a failed mutating command
func reportErr(out Printer, err error) error {
	if err != nil {
		out.Error("Error: %d", stepper.Code(err))
	}
	return err
}

func invalid(out Printer, err error) error {
	out.Error("%v", err)
	return err
}

func cmdEnable(sh *Shell, out Printer, argv []string) error {
	enable, err := parseBool(argv[argIdxParam])
	if err != nil {
		return invalid(out, err)
	}
	dev, err := sh.resolve(out, argv)
	if err != nil {
		return err
	}
	return reportErr(out, stepper.Enable(dev, enable))
}

func cmdMove(sh *Shell, out Printer, argv []string) error {
	steps, err := parseInt32(argv[argIdxParam])
	if err != nil {
		return invalid(out, err)
	}
	dev, err := sh.resolve(out, argv)
	if err != nil {
		return err
	}
	sig := sh.completionSignal(out, dev)
	return reportErr(out, stepper.Move(dev, steps, sig))
}

func cmdSetMaxVelocity(sh *Shell, out Printer, argv []string) error {
	velocity, err := parseUint32(argv[argIdxParam])
	if err != nil {
		return invalid(out, err)
	}
	dev, err := sh.resolve(out, argv)
	if err != nil {
		return err
	}
	return reportErr(out, stepper.SetMaxVelocity(dev, velocity))
}

func cmdSetMicroStepRes(sh *Shell, out Printer, argv []string) error {
	res, err := MicroStepSymbols.Lookup(argv[argIdxParam])
	if err != nil {
		return invalid(out, err)
	}
	dev, err := sh.resolve(out, argv)
	if err != nil {
		return err
	}
	return reportErr(out, stepper.SetMicroStepRes(dev, stepper.MicroStepResolution(res)))
}

func cmdGetMicroStepRes(sh *Shell, out Printer, argv []string) error {
	dev, err := sh.resolve(out, argv)
	if err != nil {
		return err
	}
	return queryMicroStepRes(out, dev)
}

func cmdSetActualPosition(sh *Shell, out Printer, argv []string) error {
	pos, err := parseInt32(argv[argIdxParam])
	if err != nil {
		return invalid(out, err)
	}
	dev, err := sh.resolve(out, argv)
	if err != nil {
		return err
	}
	return reportErr(out, stepper.SetActualPosition(dev, pos))
}

func cmdGetActualPosition(sh *Shell, out Printer, argv []string) error {
	dev, err := sh.resolve(out, argv)
	if err != nil {
		return err
	}
	return queryActualPosition(out, dev)
}

func cmdSetTargetPosition(sh *Shell, out Printer, argv []string) error {
	pos, err := parseInt32(argv[argIdxParam])
	if err != nil {
		return invalid(out, err)
	}
	dev, err := sh.resolve(out, argv)
	if err != nil {
		return err
	}
	sig := sh.completionSignal(out, dev)
	return reportErr(out, stepper.SetTargetPosition(dev, pos, sig))
}

func cmdEnableConstantVelocityMode(sh *Shell, out Printer, argv []string) error {
	dir, err := DirectionSymbols.Lookup(argv[argIdxParam])
	if err != nil {
		return invalid(out, err)
	}
	velocity, err := parseUint32(argv[argIdxValue])
	if err != nil {
		return invalid(out, err)
	}
	dev, err := sh.resolve(out, argv)
	if err != nil {
		return err
	}
	return reportErr(out, stepper.EnableConstantVelocityMode(dev, stepper.Direction(dir), velocity))
}

// cmdInfo runs each query on its own; a failed query is a warning and does
// not stop the others, and info itself succeeds once the device resolves
func cmdInfo(sh *Shell, out Printer, argv []string) error {
	dev, err := sh.resolve(out, argv)
	if err != nil {
		return err
	}
	out.Print("Stepper Info:")
	out.Print("Device: %s", dev.Name())
	queryActualPosition(out, dev)
	queryMicroStepRes(out, dev)
	queryMoving(out, dev)
	return nil
}

func queryActualPosition(out Printer, dev stepper.Device) error {
	pos, err := stepper.GetActualPosition(dev)
	if err != nil {
		out.Warn("Failed to get actual position: %d", stepper.Code(err))
		return err
	}
	out.Print("Actual Position: %d", pos)
	return nil
}

func queryMicroStepRes(out Printer, dev stepper.Device) error {
	res, err := stepper.GetMicroStepRes(dev)
	if err != nil {
		out.Warn("Failed to get micro-step resolution: %d", stepper.Code(err))
		return err
	}
	out.Print("Micro-step Resolution: %d", res)
	return nil
}

func queryMoving(out Printer, dev stepper.Device) error {
	moving, err := stepper.IsMoving(dev)
	if err != nil {
		out.Warn("Failed to check if the motor is moving: %d", stepper.Code(err))
		return err
	}
	if moving {
		out.Print("Is Moving: Yes")
	} else {
		out.Print("Is Moving: No")
	}
	return nil
}

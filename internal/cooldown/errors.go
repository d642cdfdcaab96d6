package cooldown

import "errors"

var ErrCoolingDown = errors.New("claim is cooling down")

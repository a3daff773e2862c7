package types

type LoginMode int

const (
	LoginModeAuto LoginMode = iota // probe legacy first, fall back to SCRAM
	LoginModeLegacy
	LoginModeScram
)

type RouterConfig struct {
	Name      string
	Site      string
	Ip        string
	LoginMode LoginMode
}

func LoginModeFor(mode string) LoginMode {
	switch mode {
	case "legacy":
		return LoginModeLegacy
	case "scram":
		return LoginModeScram
	default:
		return LoginModeAuto
	}
}

package adb

import "testing"

func TestHasOnlineDevice(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want bool
	}{
		{
			"one device online",
			"List of devices attached\nemulator-5554\tdevice\n",
			true,
		},
		{
			"no devices",
			"List of devices attached\n\n",
			false,
		},
		{
			"header only",
			"List of devices attached\n",
			false,
		},
		{
			"unauthorized device",
			"List of devices attached\n0123456789\tunauthorized\n",
			false,
		},
		{
			"offline device",
			"List of devices attached\n0123456789\toffline\n",
			false,
		},
		{
			"one of several online",
			"List of devices attached\nabc\toffline\ndef\tdevice\n",
			true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hasOnlineDevice(tc.out); got != tc.want {
				t.Errorf("hasOnlineDevice(%q) = %v, want %v", tc.out, got, tc.want)
			}
		})
	}
}

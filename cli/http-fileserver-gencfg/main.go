package main

import (
	"os"

	"github.com/sagernet/sing-fileserver/extensions/fileserver"
	"github.com/sagernet/sing/common"
	"gopkg.in/yaml.v3"
)

func main() {
	options := fileserver.DefaultOptions()
	content, err := yaml.Marshal(&options)
	common.Must(err)
	common.Must1(os.Stdout.Write(content))
}

package tools

// InstallHints suggests how to make a tool available.
func InstallHints(tool string) []string {
	def, ok := Definition(tool)
	if !ok {
		return nil
	}
	if def.Daemon {
		return []string{
			"Install globally: npm install --global " + def.Package,
			"or run: pefmt daemons install",
		}
	}
	return []string{
		"Add to the project: npm install --save-dev " + def.Package,
		"or with pnpm: pnpm add -D " + def.Package,
		"or with yarn: yarn add -D " + def.Package,
	}
}

package languages

import (
	"regexp"
	"strings"
)

var (
	javaPublicClass = regexp.MustCompile(`public\s+class\s+\w+`)
	sqlDoubleQuoted = regexp.MustCompile(`"([^"]+)"`)
)

// renameJavaClass renames the first public class to Main so that the fixed
// "java Main" run command finds it.
func renameJavaClass(code string) string {
	replaced := false
	return javaPublicClass.ReplaceAllStringFunc(code, func(match string) string {
		if replaced {
			return match
		}
		replaced = true
		return "public class Main"
	})
}

// wrapCSharp wraps bare statements in a Program class with a Main method.
func wrapCSharp(code string) string {
	hasClass := strings.Contains(code, "class ")
	hasMain := strings.Contains(code, "static void Main") || strings.Contains(code, "static async Task Main")
	if hasClass || hasMain {
		return code
	}

	return `using System;

public class Program
{
    public static void Main(string[] args)
    {
` + code + `
    }
}
`
}

// injectReadlinePrelude feeds readline-based programs from the input file,
// since the run step has no terminal to answer rl.question.
func injectReadlinePrelude(code string) string {
	if !strings.Contains(code, "readline") && !strings.Contains(code, "rl.question") {
		return code
	}
	return readlinePrelude + code + "\n"
}

// singleQuoteSQL turns "text" into 'text' for SQLite string literals. It also
// rewrites legitimately double-quoted identifiers.
func singleQuoteSQL(code string) string {
	return sqlDoubleQuoted.ReplaceAllString(code, "'$1'")
}

const readlinePrelude = `Object.keys(require.cache).forEach((key) => {
    delete require.cache[key];
});

const __codeboxInput = require('fs').readFileSync('` + InputPath + `', 'utf8').trim().split('\n');
let __codeboxInputIndex = 0;

const __codeboxRequire = require;
require = function (moduleName) {
    if (moduleName === 'readline') {
        const realReadline = __codeboxRequire(moduleName);
        return {
            ...realReadline,
            createInterface: (options) => {
                const rl = realReadline.createInterface(options);
                rl.question = (query, callback) => {
                    const response = __codeboxInput[__codeboxInputIndex] || '';
                    __codeboxInputIndex++;
                    callback(response);
                };
                return rl;
            },
        };
    }
    return __codeboxRequire(moduleName);
};

`

const csharpProject = `<Project Sdk="Microsoft.NET.Sdk">
  <PropertyGroup>
    <OutputType>Exe</OutputType>
    <TargetFramework>net8.0</TargetFramework>
    <ImplicitUsings>enable</ImplicitUsings>
    <Nullable>enable</Nullable>
    <AssemblyName>project</AssemblyName>
  </PropertyGroup>
</Project>
`

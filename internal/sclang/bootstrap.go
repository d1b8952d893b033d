package sclang

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/viktorkelemen/sc-repl-mcp/internal/config"
)

// Bootstrap renders the startup script for the persistent interpreter: it
// connects to the running scsynth, loads the analyzer and meter synthdefs,
// forwards their SendReply traffic to our listen port, and installs the
// code-execution responder.
func Bootstrap(cfg config.Config) string {
	bands := make([]string, len(config.SpectrumBandFrequencies))
	for i, f := range config.SpectrumBandFrequencies {
		bands[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	bandList := strings.Join(bands, ", ")

	return fmt.Sprintf(`// Attach to the already-running scsynth so synthdefs land on the right server.
Server.default = Server.remote(\scsynth, NetAddr("%[1]s", %[2]d));
s = Server.default;

fork {
    0.5.wait;

    SynthDef(\mcp_analyzer, {
        arg bus = 0, replyRate = 10, replyID = 1001;
        var in, mono, fft;
        var freq, hasFreq, centroid, flatness, rolloff;
        var peakL, peakR, rmsL, rmsR;
        var loudness;
        var onsetTrig;
        var spectrumBands;

        in = In.ar(bus, 2);
        mono = in.sum * 0.5;
        fft = FFT(LocalBuf(2048), mono);

        # freq, hasFreq = Pitch.kr(mono, ampThreshold: 0.01, median: 7);

        centroid = SpecCentroid.kr(fft);
        flatness = SpecFlatness.kr(fft);
        rolloff = SpecPcile.kr(fft, 0.9);

        peakL = PeakFollower.kr(in[0], 0.99);
        peakR = PeakFollower.kr(in[1], 0.99);
        rmsL = RunningSum.rms(in[0], 1024);
        rmsR = RunningSum.rms(in[1], 1024);

        // Loudness in sones, 2 sones reads as twice as loud as 1.
        loudness = Loudness.kr(fft);

        onsetTrig = Onsets.kr(fft, threshold: 0.3, odftype: \rcomplex);

        spectrumBands = FFTSubbandPower.kr(fft, [%[3]s], square: 0);

        SendReply.kr(
            Impulse.kr(replyRate),
            '/mcp/analysis',
            [freq, hasFreq, centroid, flatness, rolloff, peakL, peakR, rmsL, rmsR, loudness],
            replyID
        );

        SendReply.kr(
            onsetTrig,
            '/mcp/onset',
            [freq, peakL + peakR * 0.5],
            replyID
        );

        SendReply.kr(
            Impulse.kr(replyRate),
            '/mcp/spectrum',
            spectrumBands,
            replyID
        );
    }).add;

    SynthDef(\mcp_meter, {
        arg bus = 0, replyRate = 20, replyID = 1002;
        var in, peakL, peakR, rmsL, rmsR;

        in = In.ar(bus, 2);
        peakL = PeakFollower.kr(in[0], 0.99);
        peakR = PeakFollower.kr(in[1], 0.99);
        rmsL = RunningSum.rms(in[0], 512);
        rmsR = RunningSum.rms(in[1], 512);

        SendReply.kr(
            Impulse.kr(replyRate),
            '/mcp/meter',
            [peakL, peakR, rmsL, rmsR],
            replyID
        );
    }).add;

    "screpl synthdefs loaded".postln;
};

// SendReply lands in sclang; relay it to the controller's listen port.
~controlAddr = NetAddr("%[1]s", %[4]d);

OSCFunc({ |msg|
    ~controlAddr.sendMsg(*msg);
}, '/mcp/analysis');

OSCFunc({ |msg|
    ~controlAddr.sendMsg(*msg);
}, '/mcp/onset');

OSCFunc({ |msg|
    ~controlAddr.sendMsg(*msg);
}, '/mcp/spectrum');

OSCFunc({ |msg|
    ~controlAddr.sendMsg(*msg);
}, '/mcp/meter');

// Run code sent over OSC in this long-lived interpreter so each request
// skips the class library recompile a fresh sclang would pay.
OSCFunc({ |msg|
    var requestId = msg[1].asInteger;
    var filePath = msg[2].asString;
    var code, result, success, output;

    try {
        code = File.readAllString(filePath);
        result = thisProcess.interpreter.interpret(code);
        success = 1;
        output = if(result.notNil) { result.asString } { "(nil)" };
        if(output.size > %[5]d) {
            output = output.keep(%[5]d) ++ "... (truncated)";
        };
    } { |error|
        success = 0;
        output = error.errorString;
        if(output.size > %[5]d) {
            output = output.keep(%[5]d) ++ "... (truncated)";
        };
    };

    ~controlAddr.sendMsg('/mcp/eval/result', requestId, success, output);
}, '/mcp/eval');

"screpl sclang ready".postln;

{ inf.wait }.defer;
`, cfg.Host, cfg.ScsynthPort, bandList, cfg.ReplyPort, cfg.EvalOutputLimit)
}
